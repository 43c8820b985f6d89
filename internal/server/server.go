package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tooldo/internal/domain"
	"tooldo/internal/engine"
	"tooldo/internal/filter"
	"tooldo/internal/rbac"
	"tooldo/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"role executor lacks permission manage:members"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the ToolDo API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
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

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("ToolDo API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCompanies(group, cfg.Engine)
	registerTeams(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerPlans(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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
	// Errors that already carry a status (pre-built apiErrors) pass through
	// untouched instead of being re-coded by the message heuristics below.
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe rbac.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": string(fe.Permission)})
	}
	var re rbac.ForbiddenRoleError
	if errors.As(err, &re) {
		return newAPIError(http.StatusForbidden, "forbidden_role", err.Error(), map[string]any{
			"manager": string(re.Manager),
			"target":  string(re.Target),
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "allows at most"):
		return newAPIError(http.StatusConflict, "plan_limit", msg, nil)
	case strings.Contains(lowered, "status transition"):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "unknown role"),
		strings.Contains(lowered, "unknown priority"),
		strings.Contains(lowered, "unknown preset"),
		strings.Contains(lowered, "not in company"),
		strings.Contains(lowered, "not in catalog"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requirePermission resolves the caller's role and checks a single permission.
// Mutating operations re-check inside the engine; this gates read endpoints.
func requirePermission(ctx context.Context, e engine.Engine, perm rbac.Permission) error {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.MemberID == "" {
		return newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	role := p.Role
	if role == "" {
		m, err := e.Repo.GetMember(ctx, p.MemberID)
		if err != nil {
			return err
		}
		role = m.Role
	}
	if !rbac.Has(role, perm) {
		return rbac.ForbiddenError{Permission: perm}
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]bool{}
	for _, p := range []string{"health", "dev/login"} {
		route := path.Join(basePath, p)
		if !strings.HasPrefix(route, "/") {
			route = "/" + route
		}
		openPaths[route] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>ToolDo API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCompanies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-company",
		Method:        http.MethodPost,
		Path:          "/companies",
		Summary:       "Create company",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCompanyRequest `json:"body"`
	}) (*struct {
		Body domain.Company `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		c, err := e.CreateCompany(ctx, input.Body.Name, input.Body.PlanID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Company `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-companies",
		Method:      http.MethodGet,
		Path:        "/companies",
		Summary:     "List companies",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Company `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, rbac.PermViewDashboard); err != nil {
			return nil, handleError(err)
		}
		companies, err := e.Repo.ListCompanies(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Company `json:"body"`
		}{Body: companies}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-company",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}",
		Summary:     "Get company",
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body domain.Company `json:"body"`
	}, error) {
		c, err := e.Repo.GetCompany(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Company `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-company",
		Method:      http.MethodPatch,
		Path:        "/companies/{company_id}",
		Summary:     "Update company",
	}, func(ctx context.Context, input *struct {
		CompanyID string               `path:"company_id"`
		Body      UpdateCompanyRequest `json:"body"`
	}) (*struct {
		Body domain.Company `json:"body"`
	}, error) {
		c, err := e.UpdateCompany(ctx, input.CompanyID, input.Body.Name, input.Body.PlanID, input.Body.Status, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Company `json:"body"`
		}{Body: c}, nil
	})
}

func registerTeams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		CompanyID string            `path:"company_id"`
		Body      CreateTeamRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := e.CreateTeam(ctx, input.CompanyID, input.Body.Name, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/teams",
		Summary:     "List teams",
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*struct {
		Body []domain.Team `json:"body"`
	}, error) {
		teams, err := e.Repo.ListTeams(ctx, input.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Team `json:"body"`
		}{Body: teams}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/members",
		Summary:       "Add member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string              `path:"company_id"`
		Body      CreateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		m, err := e.AddMember(ctx, engine.MemberCreateOptions{
			CompanyID: input.CompanyID,
			TeamID:    input.Body.TeamID,
			FirstName: input.Body.FirstName,
			LastName:  input.Body.LastName,
			Email:     input.Body.Email,
			Role:      rbac.Role(input.Body.Role),
			ActorID:   actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/members",
		Summary:     "List members",
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		TeamID    string `query:"team_id"`
	}) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		members, err := e.Repo.ListMembers(ctx, input.CompanyID, input.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}",
		Summary:     "Get member",
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		m, err := e.Repo.GetMember(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-member",
		Method:      http.MethodPatch,
		Path:        "/members/{member_id}",
		Summary:     "Update member role or team",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		MemberID string              `path:"member_id"`
		Body     UpdateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		m, err := e.Repo.GetMember(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Role != nil {
			m, err = e.SetMemberRole(ctx, input.MemberID, rbac.Role(*input.Body.Role), actorID(ctx))
			if err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.TeamID != nil {
			m, err = e.SetMemberTeam(ctx, input.MemberID, *input.Body.TeamID, actorID(ctx))
			if err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/members/{member_id}",
		Summary:       "Remove member",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct{}, error) {
		if err := e.RemoveMember(ctx, input.MemberID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "List plans",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Plan `json:"body"`
	}, error) {
		plans, err := e.Repo.ListPlans(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Plan `json:"body"`
		}{Body: plans}, nil
	})
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-action",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/actions",
		Summary:       "Create action",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string              `path:"company_id"`
		Body      CreateActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		a, err := e.CreateAction(ctx, engine.ActionCreateOptions{
			CompanyID:      input.CompanyID,
			TeamID:         input.Body.TeamID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			Objective:      input.Body.Objective,
			Priority:       input.Body.Priority,
			EstimatedStart: input.Body.EstimatedStart,
			EstimatedEnd:   input.Body.EstimatedEnd,
			ResponsibleID:  input.Body.ResponsibleID,
			Checklist:      input.Body.Checklist,
			ActorID:        actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "List actions",
		Description: "Filterable action listing. Executors only see actions assigned to them.",
	}, func(ctx context.Context, input *struct {
		Status    []string `query:"status"`
		Priority  string   `query:"priority"`
		Scope     string   `query:"scope" enum:"all,assigned-to-me,created-by-me,my-teams"`
		Blocked   bool     `query:"blocked"`
		Late      bool     `query:"late"`
		DateFrom  string   `query:"date_from"`
		DateTo    string   `query:"date_to"`
		DateField string   `query:"date_field" enum:"created,updated,estimated_start,estimated_end,completed"`
		TeamID    string   `query:"team_id"`
		Query     string   `query:"q"`
		Objective string   `query:"objective"`
		Sort      string   `query:"sort"`
		Desc      bool     `query:"desc"`
		Page      int      `query:"page"`
		Limit     int      `query:"limit"`
	}) (*struct {
		Body paginatedActions `json:"body"`
	}, error) {
		state := filter.State{
			Statuses:        input.Status,
			Priority:        input.Priority,
			Scope:           filter.Scope(input.Scope),
			ShowBlockedOnly: input.Blocked,
			ShowLateOnly:    input.Late,
			DateFrom:        input.DateFrom,
			DateTo:          input.DateTo,
			DateField:       input.DateField,
			TeamID:          input.TeamID,
			Query:           input.Query,
			Objective:       input.Objective,
			SortKey:         input.Sort,
			SortDesc:        input.Desc,
		}
		page := input.Page
		if page < 1 {
			page = 1
		}
		limit := normalizeLimit(input.Limit)
		actions, err := e.ListActions(ctx, state, actorID(ctx), page, limit)
		if err != nil {
			return nil, handleError(err)
		}
		if actions == nil {
			actions = []domain.Action{}
		}
		return &struct {
			Body paginatedActions `json:"body"`
		}{Body: paginatedActions{Items: actions, Page: page, Limit: limit}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/actions/{action_id}",
		Summary:     "Get action",
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		a, err := e.GetAction(ctx, input.ActionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-action",
		Method:      http.MethodPatch,
		Path:        "/actions/{action_id}",
		Summary:     "Update action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ActionID string              `path:"action_id"`
		Body     UpdateActionRequest `json:"body"`
	}) (*struct {
		Body domain.Action `json:"body"`
	}, error) {
		opts := engine.ActionUpdateOptions{
			ID:             input.ActionID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			Objective:      input.Body.Objective,
			Assign:         input.Body.ResponsibleID,
			EstimatedStart: input.Body.EstimatedStart,
			EstimatedEnd:   input.Body.EstimatedEnd,
			Blocked:        input.Body.Blocked,
			BlockedReason:  input.Body.BlockedReason,
			KanbanColumn:   input.Body.KanbanColumn,
			KanbanOrder:    input.Body.KanbanOrder,
			ActorID:        actorID(ctx),
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		a, err := e.UpdateAction(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Action `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-action",
		Method:        http.MethodDelete,
		Path:          "/actions/{action_id}",
		Summary:       "Delete action",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*struct{}, error) {
		if err := e.DeleteAction(ctx, input.ActionID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-checklist-item",
		Method:        http.MethodPost,
		Path:          "/actions/{action_id}/checklist",
		Summary:       "Add checklist item",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ActionID string               `path:"action_id"`
		Body     ChecklistItemRequest `json:"body"`
	}) (*struct {
		Body domain.ChecklistItem `json:"body"`
	}, error) {
		item, err := e.AddChecklistItem(ctx, input.ActionID, input.Body.Title, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-checklist-item-done",
		Method:      http.MethodPatch,
		Path:        "/actions/{action_id}/checklist/{item_id}",
		Summary:     "Toggle checklist item",
	}, func(ctx context.Context, input *struct {
		ActionID string                  `path:"action_id"`
		ItemID   string                  `path:"item_id"`
		Body     SetChecklistDoneRequest `json:"body"`
	}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		if err := e.SetChecklistItemDone(ctx, input.ActionID, input.ItemID, input.Body.Done, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"done": input.Body.Done}}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/dashboard",
		Summary:     "Company dashboard",
		Description: "Period metrics with previous-period deltas, team roster and daily delivery trend.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
		Preset    string `query:"preset" enum:"this-week,last-2-weeks,this-month,last-30-days"`
	}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		d, err := e.ComputeDashboard(ctx, input.Preset, input.CompanyID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
		Description: "Most recent events first. Pass cursor to page backwards.",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
		CompanyID  string `query:"company_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, rbac.PermViewReports); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		evts, err := e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.CompanyID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		Description:   "The plaintext key is returned once and never stored.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		memberID := input.Body.MemberID
		if memberID == "" {
			memberID = actorID(ctx)
		}
		key, plaintext, err := e.CreateAPIKey(ctx, memberID, input.Body.Name, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			MemberID:  key.MemberID,
			Name:      key.Name,
			Key:       plaintext,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		MemberID string `query:"member_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		memberID := input.MemberID
		if memberID == "" {
			memberID = actorID(ctx)
		}
		if memberID != actorID(ctx) {
			if err := requirePermission(ctx, e, rbac.PermManageAPIKeys); err != nil {
				return nil, handleError(err)
			}
		}
		keys, err := e.Repo.ListAPIKeys(ctx, memberID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			res = append(res, APIKeyResponse{ID: k.ID, MemberID: k.MemberID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/apikeys/{key_id}",
		Summary:       "Delete API key",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, rbac.PermManageAPIKeys); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := PrincipalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		role := p.Role
		if role == "" {
			if m, err := e.Repo.GetMember(ctx, p.MemberID); err == nil {
				role = m.Role
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			MemberID:    p.MemberID,
			Role:        string(role),
			Permissions: nonNilSlice(permissionStrings(role)),
			Source:      p.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/dev/login",
		Summary:     "Dev login",
		Description: "Mints a development JWT. Requires a configured JWT secret.",
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if authCfg.JWTSecret == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "jwt secret not configured", nil)
		}
		if input.Body.MemberID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "member_id is required", nil)
		}
		role := rbac.Role(input.Body.Role)
		if role == "" {
			if m, err := e.Repo.GetMember(ctx, input.Body.MemberID); err == nil {
				role = m.Role
			}
		}
		// Token lifetime is validated against the wall clock at parse time,
		// so expiry must be stamped from the wall clock as well.
		token, err := signDevToken(authCfg.JWTSecret, input.Body.MemberID, role, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
