package testutil

import "context"

type MockNotifier struct {
	NotifyFunc func(ctx context.Context, content string) error
}

func (m *MockNotifier) Notify(ctx context.Context, content string) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, content)
	}

	return nil
}
