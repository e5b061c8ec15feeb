package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"claimsaga/internal/app"
	"claimsaga/internal/collab"
	"claimsaga/internal/config"
	"claimsaga/internal/domain"
	"claimsaga/internal/saga"
	"claimsaga/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Services *app.Services
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"collaborator_failed"`
	Message string         `json:"message" example:"claim 9f1c: settle step failed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"step\":\"settle\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing every service enabled in the config.
func New(cfg Config) (http.Handler, error) {
	if cfg.Services == nil {
		return nil, errors.New("server: services are required")
	}
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	s := cfg.Services
	router := chi.NewRouter()
	router.Use(newIntakeLimiter(basePath, s.Config.Intake, s.Logger))
	hcfg := huma.DefaultConfig("Claimsaga API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	registerDocs(router, basePath)
	registerHealth(group)
	if s.Config.Enabled(config.ServiceOrchestrator) {
		registerClaims(group, s)
	}
	if s.Config.Enabled(config.ServiceVerification) {
		registerVerification(group, s)
	}
	if s.Config.Enabled(config.ServiceValuation) {
		registerValuation(group, s)
	}
	if s.Config.Enabled(config.ServicePayment) {
		registerPayments(group, s)
	}
	if s.Config.Enabled(config.ServiceAudit) {
		registerAudit(group, s)
	}
	if s.Config.Enabled(config.ServiceMonitor) {
		registerMonitor(group, s)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var se *saga.StepError
	if errors.As(err, &se) {
		details := map[string]any{"claimId": se.ClaimID, "step": string(se.Step)}
		var ae *collab.APIError
		if errors.As(err, &ae) {
			details["upstreamStatus"] = ae.StatusCode
		}
		return newAPIError(http.StatusBadGateway, "collaborator_failed", err.Error(), details)
	}
	msg := err.Error()
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway:
		return "collaborator_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join("/", basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components != nil && oas.Components.Schemas != nil {
		oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Claimsaga API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	for _, probe := range []string{"health", "ready"} {
		huma.Register(api, huma.Operation{
			OperationID: probe,
			Method:      http.MethodGet,
			Path:        "/" + probe,
			Summary:     strings.ToUpper(probe[:1]) + probe[1:] + " check",
		}, func(ctx context.Context, _ *struct{}) (*struct {
			Body StatusResponse `json:"body"`
		}, error) {
			return &struct {
				Body StatusResponse `json:"body"`
			}{Body: StatusResponse{Status: "ok"}}, nil
		})
	}
}

func registerClaims(api huma.API, s *app.Services) {
	huma.Register(api, huma.Operation{
		OperationID: "service-info",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Orchestrator summary",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ServiceInfoResponse `json:"body"`
	}, error) {
		claims, err := s.Orchestrator.ListClaims(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServiceInfoResponse `json:"body"`
		}{Body: ServiceInfoResponse{Service: s.Config.Service.Name, Claims: len(claims)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "file-claim",
		Method:      http.MethodPost,
		Path:        "/claims",
		Summary:     "File a claim and run it through the saga",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body FileClaimRequest `json:"body"`
	}) (*struct {
		Body domain.Claim `json:"body"`
	}, error) {
		c, err := s.Orchestrator.FileClaim(ctx, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Claim `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-claims",
		Method:      http.MethodGet,
		Path:        "/claims",
		Summary:     "List claims, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ClaimListResponse `json:"body"`
	}, error) {
		claims, err := s.Orchestrator.ListClaims(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ClaimListResponse `json:"body"`
		}{Body: ClaimListResponse{Items: nonNilSlice(claims)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-claim",
		Method:      http.MethodGet,
		Path:        "/claims/{claimId}",
		Summary:     "Get claim",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClaimID string `path:"claimId"`
	}) (*struct {
		Body domain.Claim `json:"body"`
	}, error) {
		c, err := s.Orchestrator.GetClaim(ctx, input.ClaimID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Claim `json:"body"`
		}{Body: c}, nil
	})
}

func registerVerification(api huma.API, s *app.Services) {
	huma.Register(api, huma.Operation{
		OperationID: "verify-claim",
		Method:      http.MethodPost,
		Path:        "/verify",
		Summary:     "Score a claim for fraud",
	}, func(ctx context.Context, input *struct {
		Body VerifyRequest `json:"body"`
	}) (*struct {
		Body domain.VerificationResult `json:"body"`
	}, error) {
		res := s.Verifier.Verify(ctx, domain.VerifyRequest(input.Body))
		return &struct {
			Body domain.VerificationResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerValuation(api huma.API, s *app.Services) {
	huma.Register(api, huma.Operation{
		OperationID: "valuate-claim",
		Method:      http.MethodPost,
		Path:        "/valuate",
		Summary:     "Compute the diminished-value payout",
	}, func(ctx context.Context, input *struct {
		Body ValuateRequest `json:"body"`
	}) (*struct {
		Body domain.Valuation `json:"body"`
	}, error) {
		v := s.Valuation.Valuate(domain.ValuationRequest(input.Body))
		return &struct {
			Body domain.Valuation `json:"body"`
		}{Body: v}, nil
	})
}

func registerPayments(api huma.API, s *app.Services) {
	huma.Register(api, huma.Operation{
		OperationID: "pay-claim",
		Method:      http.MethodPost,
		Path:        "/pay",
		Summary:     "Disburse a payout, once per claim",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PayRequest `json:"body"`
	}) (*struct {
		Body domain.Payment `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.ClaimID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "claimId is required", nil)
		}
		p, err := s.Payments.Pay(ctx, domain.PaymentRequest(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Payment `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-disbursements",
		Method:      http.MethodGet,
		Path:        "/payments",
		Summary:     "List recorded disbursements",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DisbursementListResponse `json:"body"`
	}, error) {
		items, err := s.Payments.Disbursements(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisbursementListResponse `json:"body"`
		}{Body: DisbursementListResponse{Items: nonNilSlice(items)}}, nil
	})
}

func registerAudit(api huma.API, s *app.Services) {
	huma.Register(api, huma.Operation{
		OperationID: "append-audit",
		Method:      http.MethodPost,
		Path:        "/audit",
		Summary:     "Append an audit event",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body AuditRequest `json:"body"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.EventType) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "eventType is required", nil)
		}
		if _, err := s.Audit.Append(ctx, input.Body.EventType, input.Body.Data); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{Status: "logged"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-by-claim",
		Method:      http.MethodGet,
		Path:        "/audit/claim/{claimId}",
		Summary:     "Audit events for a claim, oldest first",
	}, func(ctx context.Context, input *struct {
		ClaimID string `path:"claimId"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		items, err := s.Audit.ByClaim(ctx, input.ClaimID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit-recent",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Most recent audit events, oldest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" maximum:"1000" doc:"defaults to 200"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		items, err := s.Audit.Recent(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerMonitor(api huma.API, s *app.Services) {
	huma.Register(api, huma.Operation{
		OperationID: "start-watch",
		Method:      http.MethodPost,
		Path:        "/monitor/start",
		Summary:     "Start monitoring a VIN",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body WatchRequest `json:"body"`
	}) (*struct {
		Body WatchStartedResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.VIN) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "vin is required", nil)
		}
		w, err := s.Watches.Start(ctx, domain.WatchRequest(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WatchStartedResponse `json:"body"`
		}{Body: WatchStartedResponse{Status: "watching", VIN: w.VIN}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-watches",
		Method:      http.MethodGet,
		Path:        "/monitor/list",
		Summary:     "List monitored VINs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Watch `json:"body"`
	}, error) {
		items, err := s.Watches.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Watch `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}
