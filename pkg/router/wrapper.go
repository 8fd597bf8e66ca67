package router

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/gritlabs/backend/pkg/xcontext"
)

func wrapHandler[Request, Response any](
	r *Router, method string, handler HandlerFunc[Request, Response],
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ctx := r.baseCtx
		ctx = xcontext.WithHTTPRequest(ctx, req)
		ctx = xcontext.WithHTTPWriter(ctx, w)

		err := func() error {
			for _, before := range r.befores {
				newCtx, err := before(ctx)
				if err != nil {
					return err
				}

				if newCtx != nil {
					ctx = newCtx
				}
			}

			var request Request
			switch method {
			case http.MethodGet:
				if err := decodeQuery(req, &request); err != nil {
					return errorx.New(errorx.BadRequest, "Cannot parse the query")
				}
			case http.MethodPost:
				if req.Body != nil && req.ContentLength != 0 {
					if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
						return errorx.New(errorx.BadRequest, "Cannot parse the request body")
					}
				}
			}

			resp, err := handler(ctx, &request)
			if err != nil {
				return err
			}

			return writeJSON(w, newResponse(resp))
		}()

		if err != nil {
			if werr := writeJSON(w, newErrorResponse(err)); werr != nil {
				xcontext.Logger(ctx).Errorf("Cannot write the error response: %v", werr)
			}
		}

		for _, closer := range r.closers {
			closer(ctx, err)
		}
	})
}

// decodeQuery binds URL query parameters onto the request struct using its
// json tags. Only the scalar kinds our GET requests use are supported.
func decodeQuery(req *http.Request, target any) error {
	values := req.URL.Query()
	structValue := reflect.ValueOf(target).Elem()
	structType := structValue.Type()

	for i := 0; i < structType.NumField(); i++ {
		name, _, _ := strings.Cut(structType.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		raw := values.Get(name)
		if raw == "" {
			continue
		}

		field := structValue.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return err
			}
			field.SetBool(b)
		case reflect.Int, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
		}
	}

	return nil
}
