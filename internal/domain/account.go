package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gritlabs/backend/internal/client"
	"github.com/gritlabs/backend/internal/entity"
	"github.com/gritlabs/backend/internal/model"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type AccountDomain interface {
	GetMe(ctx context.Context, req *model.GetMeRequest) (*model.GetMeResponse, error)
	Update(ctx context.Context, req *model.UpdateUserRequest) (*model.UpdateUserResponse, error)
	LinkCredential(ctx context.Context, req *model.LinkCredentialRequest) (*model.LinkCredentialResponse, error)
	FindDuplicates(ctx context.Context, req *model.FindDuplicatesRequest) (*model.FindDuplicatesResponse, error)
	Merge(ctx context.Context, req *model.MergeUsersRequest) (*model.MergeUsersResponse, error)
	MergeAll(ctx context.Context, req *model.MergeAllRequest) (*model.MergeAllResponse, error)
}

type accountDomain struct {
	userRepo         repository.UserRepository
	credentialRepo   repository.CredentialRepository
	raffleRepo       repository.RaffleRepository
	refreshTokenRepo repository.RefreshTokenRepository
	outboxRepo       repository.OutboxRepository
	ledger           client.Ledger
}

func NewAccountDomain(
	userRepo repository.UserRepository,
	credentialRepo repository.CredentialRepository,
	raffleRepo repository.RaffleRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	outboxRepo repository.OutboxRepository,
	ledger client.Ledger,
) *accountDomain {
	return &accountDomain{
		userRepo:         userRepo,
		credentialRepo:   credentialRepo,
		raffleRepo:       raffleRepo,
		refreshTokenRepo: refreshTokenRepo,
		outboxRepo:       outboxRepo,
		ledger:           ledger,
	}
}

func (d *accountDomain) GetMe(
	ctx context.Context, req *model.GetMeRequest,
) (*model.GetMeResponse, error) {
	user, err := d.userRepo.GetByID(ctx, xcontext.RequestUserID(ctx))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user: %v", err)
		return nil, errorx.Unknown
	}

	credentials, err := d.credentialRepo.GetAllByUserID(ctx, user.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get credentials: %v", err)
		return nil, errorx.Unknown
	}

	resp := model.GetMeResponse(model.ConvertUser(user, credentials))
	return &resp, nil
}

func (d *accountDomain) Update(
	ctx context.Context, req *model.UpdateUserRequest,
) (*model.UpdateUserResponse, error) {
	err := d.userRepo.UpdateByID(ctx, xcontext.RequestUserID(ctx), &entity.User{
		Name:            req.Name,
		ShippingName:    req.ShippingName,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot update user: %v", err)
		return nil, errorx.Unknown
	}

	return &model.UpdateUserResponse{}, nil
}

func (d *accountDomain) LinkCredential(
	ctx context.Context, req *model.LinkCredentialRequest,
) (*model.LinkCredentialResponse, error) {
	user, err := d.userRepo.GetByID(ctx, xcontext.RequestUserID(ctx))
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user: %v", err)
		return nil, errorx.Unknown
	}

	adoptedRef, err := linkCredential(
		ctx, d.userRepo, d.credentialRepo, d.outboxRepo, d.ledger,
		user, req.Service, req.ServiceUserID)
	if err != nil {
		return nil, err
	}

	return &model.LinkCredentialResponse{AdoptedAccountRef: adoptedRef}, nil
}

// linkCredential attaches a proven (service, id) pair to the user. If the
// pair already maps to a ledger account and the user has none yet, that
// account is adopted, points may have accrued under the bare credential
// before anyone signed in with it. Shared by the account domain and the
// login flows.
func linkCredential(
	ctx context.Context,
	userRepo repository.UserRepository,
	credentialRepo repository.CredentialRepository,
	outboxRepo repository.OutboxRepository,
	ledger client.Ledger,
	user *entity.User,
	service, serviceUserID string,
) (string, error) {
	serviceUserID = strings.ToLower(serviceUserID)

	existing, err := credentialRepo.GetByServiceUserID(ctx, service, serviceUserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot check credential owner: %v", err)
		return "", errorx.Unknown
	}

	if existing != nil {
		if existing.UserID == user.ID {
			// Linking your own credential again is a no-op.
			return "", nil
		}

		return "", errorx.New(errorx.AlreadyExists,
			"This %s credential is already linked to another user", service)
	}

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	err = credentialRepo.Create(ctx, &entity.Credential{
		Base:          entity.Base{ID: uuid.NewString()},
		UserID:        user.ID,
		Service:       service,
		ServiceUserID: serviceUserID,
		Verified:      true,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create credential: %v", err)
		return "", errorx.Unknown
	}

	adoptedRef := ""
	if !user.AccountRef.Valid {
		account, err := ledger.FindAccountByCredential(ctx, service, serviceUserID)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot look up ledger account: %v", err)
		} else if account != nil {
			err = userRepo.UpdateByID(ctx, user.ID, &entity.User{
				AccountRef: sql.NullString{Valid: true, String: account.ID},
			})
			if err != nil {
				xcontext.Logger(ctx).Errorf("Cannot adopt account: %v", err)
				return "", errorx.Unknown
			}

			user.AccountRef = sql.NullString{Valid: true, String: account.ID}
			adoptedRef = account.ID
		}
	}

	xcontext.WithCommitDBTransaction(ctx)

	// Propagation to the ledger is best-effort: the local link is the source
	// of truth and the outbox retries what the direct call could not do.
	if user.AccountRef.Valid {
		err = ledger.LinkCredential(ctx, service, serviceUserID, user.AccountRef.String)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot propagate credential link: %v", err)
			enqueueCredentialLink(ctx, outboxRepo, service, serviceUserID, user.AccountRef.String)
		}
	}

	return adoptedRef, nil
}

func enqueueCredentialLink(
	ctx context.Context, outboxRepo repository.OutboxRepository,
	service, serviceUserID, accountRef string,
) {
	payload := fmt.Sprintf(`{"type":%q,"value":%q,"account_ref":%q}`,
		service, serviceUserID, accountRef)
	err := outboxRepo.Create(ctx, &entity.OutboxMessage{
		Base:    entity.Base{ID: uuid.NewString()},
		Topic:   xcontext.Configs(ctx).Kafka.Topic,
		Key:     accountRef,
		Payload: []byte(payload),
		Status:  entity.OutboxPending,
	})
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot enqueue credential link: %v", err)
	}
}

func (d *accountDomain) FindDuplicates(
	ctx context.Context, req *model.FindDuplicatesRequest,
) (*model.FindDuplicatesResponse, error) {
	groups, err := d.findDuplicateGroups(ctx)
	if err != nil {
		return nil, err
	}

	modelGroups := []model.DuplicateGroup{}
	for _, group := range groups {
		modelGroup := model.DuplicateGroup{AccountRef: group.accountRef}
		for i := range group.users {
			credentials, err := d.credentialRepo.GetAllByUserID(ctx, group.users[i].ID)
			if err != nil {
				xcontext.Logger(ctx).Errorf("Cannot get credentials: %v", err)
				return nil, errorx.Unknown
			}

			modelGroup.Users = append(modelGroup.Users,
				model.ConvertUser(&group.users[i], credentials))
		}

		modelGroups = append(modelGroups, modelGroup)
	}

	return &model.FindDuplicatesResponse{Groups: modelGroups}, nil
}

func (d *accountDomain) Merge(
	ctx context.Context, req *model.MergeUsersRequest,
) (*model.MergeUsersResponse, error) {
	log, err := d.merge(ctx, req.KeepUserID, req.DeleteUserID)
	if err != nil {
		return nil, err
	}

	return &model.MergeUsersResponse{Log: log}, nil
}

func (d *accountDomain) MergeAll(
	ctx context.Context, req *model.MergeAllRequest,
) (*model.MergeAllResponse, error) {
	groups, err := d.findDuplicateGroups(ctx)
	if err != nil {
		return nil, err
	}

	mergedGroups := 0
	log := []string{}
	for _, group := range groups {
		groupLog, err := d.mergeGroup(ctx, group)
		log = append(log, groupLog...)
		if err != nil {
			// One bad group must not abort the sweep over the others.
			xcontext.Logger(ctx).Errorf("Cannot merge group %s: %v", group.accountRef, err)
			log = append(log, fmt.Sprintf("group %s: aborted: %v", group.accountRef, err))
			continue
		}

		mergedGroups++
	}

	return &model.MergeAllResponse{MergedGroups: mergedGroups, Log: log}, nil
}

type duplicateGroup struct {
	accountRef string
	users      []entity.User
}

func (d *accountDomain) findDuplicateGroups(ctx context.Context) ([]duplicateGroup, error) {
	users, err := d.userRepo.GetAllLinked(ctx)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot load linked users: %v", err)
		return nil, errorx.Unknown
	}

	// Group while preserving the creation order inside each group and the
	// first-seen order across groups.
	indexByRef := map[string]int{}
	groups := []duplicateGroup{}
	for i := range users {
		ref := users[i].AccountRef.String
		if at, ok := indexByRef[ref]; ok {
			groups[at].users = append(groups[at].users, users[i])
		} else {
			indexByRef[ref] = len(groups)
			groups = append(groups, duplicateGroup{accountRef: ref, users: []entity.User{users[i]}})
		}
	}

	duplicates := []duplicateGroup{}
	for _, group := range groups {
		if len(group.users) > 1 {
			duplicates = append(duplicates, group)
		}
	}

	return duplicates, nil
}

// mergeGroup ranks the members of one duplicate group and merges everyone
// into the highest ranked one. The sort is stable on purpose: equal scores
// keep their creation order, which is the only tiebreak.
func (d *accountDomain) mergeGroup(ctx context.Context, group duplicateGroup) ([]string, error) {
	scores := map[string]int64{}
	for i := range group.users {
		score, err := d.mergeScore(ctx, &group.users[i])
		if err != nil {
			return nil, err
		}

		scores[group.users[i].ID] = score
	}

	members := make([]entity.User, len(group.users))
	copy(members, group.users)
	sort.SliceStable(members, func(i, j int) bool {
		return scores[members[i].ID] > scores[members[j].ID]
	})

	keep := members[0]
	log := []string{fmt.Sprintf("group %s: keeping user %s (score %d)",
		group.accountRef, keep.ID, scores[keep.ID])}

	for _, loser := range members[1:] {
		mergeLog, err := d.merge(ctx, keep.ID, loser.ID)
		log = append(log, mergeLog...)
		if err != nil {
			return log, err
		}
	}

	return log, nil
}

func (d *accountDomain) mergeScore(ctx context.Context, user *entity.User) (int64, error) {
	credentialCount, err := d.credentialRepo.CountByUserID(ctx, user.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot count credentials: %v", err)
		return 0, errorx.Unknown
	}

	score := credentialCount
	if user.Email.Valid && user.Email.String != "" {
		score += 10
	}

	if user.Name != "" {
		score++
	}

	return score, nil
}

// merge absorbs the loser into the keeper: credentials move unless the keeper
// already holds the same pair, owned rows are re-parented, scalar fields are
// copied only into empty slots, and the loser is removed last so a failure
// partway leaves its record intact. Every step lands in the returned log.
func (d *accountDomain) merge(ctx context.Context, keepID, deleteID string) ([]string, error) {
	if keepID == deleteID {
		return nil, errorx.New(errorx.BadRequest, "Cannot merge a user into itself")
	}

	keep, err := d.userRepo.GetByID(ctx, keepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found user %s", keepID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get keep user: %v", err)
		return nil, errorx.Unknown
	}

	loser, err := d.userRepo.GetByID(ctx, deleteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found user %s", deleteID)
		}

		xcontext.Logger(ctx).Errorf("Cannot get delete user: %v", err)
		return nil, errorx.Unknown
	}

	log := []string{fmt.Sprintf("merging user %s into %s", loser.ID, keep.ID)}

	keepCredentials, err := d.credentialRepo.GetAllByUserID(ctx, keep.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get keep credentials: %v", err)
		return log, errorx.Unknown
	}

	keepOwned := map[string]bool{}
	for _, c := range keepCredentials {
		keepOwned[c.Service+"\x00"+c.ServiceUserID] = true
	}

	loserCredentials, err := d.credentialRepo.GetAllByUserID(ctx, loser.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get loser credentials: %v", err)
		return log, errorx.Unknown
	}

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	for _, c := range loserCredentials {
		if keepOwned[c.Service+"\x00"+c.ServiceUserID] {
			if err := d.credentialRepo.DeleteByID(ctx, c.ID); err != nil {
				xcontext.Logger(ctx).Errorf("Cannot discard credential: %v", err)
				return log, errorx.Unknown
			}

			log = append(log, fmt.Sprintf(
				"discarded duplicate credential %s/%s", c.Service, c.ServiceUserID))
			continue
		}

		if err := d.credentialRepo.UpdateOwner(ctx, c.ID, keep.ID); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot move credential: %v", err)
			return log, errorx.Unknown
		}

		log = append(log, fmt.Sprintf(
			"moved credential %s/%s to %s", c.Service, c.ServiceUserID, keep.ID))
	}

	movedWinners, err := d.raffleRepo.ReassignWinners(ctx, loser.ID, keep.ID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot reassign winners: %v", err)
		return log, errorx.Unknown
	}

	if movedWinners > 0 {
		log = append(log, fmt.Sprintf("reassigned %d winner records to %s", movedWinners, keep.ID))
	}

	if err := d.refreshTokenRepo.DeleteByUserID(ctx, loser.ID); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot drop loser sessions: %v", err)
		return log, errorx.Unknown
	}

	copied := d.copyEmptyFields(keep, loser, &log)

	// The loser goes away for real so its unique name and wallet address
	// become free for the keeper to take over.
	if err := d.userRepo.DeleteByID(ctx, loser.ID); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot delete loser: %v", err)
		return log, errorx.Unknown
	}

	log = append(log, fmt.Sprintf("deleted user %s", loser.ID))

	if copied != nil {
		if err := d.userRepo.UpdateByID(ctx, keep.ID, copied); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot copy fields to keep user: %v", err)
			return log, errorx.Unknown
		}
	}

	if loser.AutoEntry && !keep.AutoEntry {
		if err := d.userRepo.SetAutoEntry(ctx, keep.ID, true); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot carry over auto entry: %v", err)
			return log, errorx.Unknown
		}

		log = append(log, "carried over auto entry opt-in")
	}

	xcontext.WithCommitDBTransaction(ctx)
	return log, nil
}

// copyEmptyFields returns the update that fills the keeper's empty scalar
// fields from the loser. Non-empty values on the keeper always win.
func (d *accountDomain) copyEmptyFields(
	keep, loser *entity.User, log *[]string,
) *entity.User {
	update := &entity.User{}
	changed := false

	if keep.Name == "" && loser.Name != "" {
		update.Name = loser.Name
		*log = append(*log, fmt.Sprintf("copied name %q", loser.Name))
		changed = true
	}

	if !nullStringSet(keep.Email) && nullStringSet(loser.Email) {
		update.Email = loser.Email
		*log = append(*log, fmt.Sprintf("copied email %q", loser.Email.String))
		changed = true
	}

	if !nullStringSet(keep.WalletAddress) && nullStringSet(loser.WalletAddress) {
		update.WalletAddress = loser.WalletAddress
		*log = append(*log, fmt.Sprintf("copied wallet address %q", loser.WalletAddress.String))
		changed = true
	}

	if !nullStringSet(keep.AccountRef) && nullStringSet(loser.AccountRef) {
		update.AccountRef = loser.AccountRef
		*log = append(*log, fmt.Sprintf("copied account ref %q", loser.AccountRef.String))
		changed = true
	}

	if keep.ShippingName == "" && loser.ShippingName != "" {
		update.ShippingName = loser.ShippingName
		*log = append(*log, "copied shipping name")
		changed = true
	}

	if keep.ShippingAddress == "" && loser.ShippingAddress != "" {
		update.ShippingAddress = loser.ShippingAddress
		*log = append(*log, "copied shipping address")
		changed = true
	}

	if !changed {
		return nil
	}

	return update
}

func nullStringSet(s sql.NullString) bool {
	return s.Valid && s.String != ""
}
