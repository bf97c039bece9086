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
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"concord/internal/domain"
	"concord/internal/engine"
	"concord/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"capacity_exceeded"`
	Message string         `json:"message" example:"conflict already has the maximum number of participants"`
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

// New returns an HTTP handler exposing the Concord API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
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
	hcfg := huma.DefaultConfig("Concord API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerConflicts(group, cfg.Engine)
	registerParticipants(group, cfg.Engine)
	registerGoals(group, cfg.Engine)
	registerSessions(group, cfg.Engine)
	registerAgreements(group, cfg.Engine)
	registerDynamics(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
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
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrCapacityExceeded):
		return newAPIError(http.StatusConflict, "capacity_exceeded", err.Error(), nil)
	case errors.Is(err, domain.ErrDuplicateParticipant):
		return newAPIError(http.StatusConflict, "duplicate_participant", err.Error(), nil)
	case errors.Is(err, domain.ErrInsufficientParticipants):
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_participants", err.Error(), nil)
	case errors.Is(err, domain.ErrAgreementFinalized):
		return newAPIError(http.StatusConflict, "agreement_finalized", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return newAPIError(http.StatusConflict, "invalid_state_transition", err.Error(), nil)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
		return "insufficient_participants"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Concord API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui',
        });
      };
    </script>
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

func registerConflicts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-conflict",
		Method:        http.MethodPost,
		Path:          "/conflicts",
		Summary:       "Create conflict",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateConflictRequest `json:"body"`
	}) (*struct {
		Body domain.Conflict `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if input.Body.CreatorName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "creator_name is required", nil)
		}
		c, err := e.CreateConflict(ctx, engine.ConflictCreateOptions{
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Category:    input.Body.Category,
			Intensity:   input.Body.Intensity,
			CreatorName: input.Body.CreatorName,
			CreatorID:   stringOrEmpty(input.Body.CreatorID),
			Settings:    settingsFromRequest(input.Body.Settings),
		})
		if err != nil {
			return nil, handleError(err)
		}
		full, err := e.GetConflict(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Conflict `json:"body"`
		}{Body: full}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-conflicts",
		Method:      http.MethodGet,
		Path:        "/conflicts",
		Summary:     "List conflicts",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:",setup,active,paused,resolved,escalated"`
		Category string `query:"category" enum:",interpersonal,family,workplace,neighbor,other"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedConflicts `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListConflicts(ctx, repo.ConflictFilters{
			Status:          input.Status,
			Category:        input.Category,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedConflicts{Items: []domain.Conflict{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedConflicts `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conflict",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}",
		Summary:     "Get conflict",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
	}) (*struct {
		Body domain.Conflict `json:"body"`
	}, error) {
		c, err := e.GetConflict(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Conflict `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-conflict-status",
		Method:      http.MethodPatch,
		Path:        "/conflicts/{conflict_id}/status",
		Summary:     "Change conflict status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string                      `path:"conflict_id"`
		Body       UpdateConflictStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Conflict `json:"body"`
	}, error) {
		c, err := e.UpdateConflictStatus(ctx, input.ConflictID, input.Body.Status, stringOrEmpty(input.Body.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Conflict `json:"body"`
		}{Body: c}, nil
	})
}

func registerParticipants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-participant",
		Method:        http.MethodPost,
		Path:          "/conflicts/{conflict_id}/participants",
		Summary:       "Add participant",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string                `path:"conflict_id"`
		Body       AddParticipantRequest `json:"body"`
	}) (*struct {
		Body domain.Participant `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := e.AddParticipant(ctx, engine.ParticipantAddOptions{
			ConflictID:  input.ConflictID,
			ID:          stringOrEmpty(input.Body.ID),
			Name:        input.Body.Name,
			Role:        input.Body.Role,
			Perspective: perspectiveFromRequest(input.Body.Perspective),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Participant `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-participant",
		Method:      http.MethodPost,
		Path:        "/conflicts/{conflict_id}/participants/{participant_id}/activate",
		Summary:     "Mark an invited participant as joined",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID    string `path:"conflict_id"`
		ParticipantID string `path:"participant_id"`
	}) (*struct {
		Body domain.Participant `json:"body"`
	}, error) {
		p, err := e.ActivateParticipant(ctx, input.ConflictID, input.ParticipantID, input.ParticipantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Participant `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-participant",
		Method:      http.MethodDelete,
		Path:        "/conflicts/{conflict_id}/participants/{participant_id}",
		Summary:     "Remove participant",
		Errors: []int{
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID    string `path:"conflict_id"`
		ParticipantID string `path:"participant_id"`
	}) (*struct {
		Body domain.Participant `json:"body"`
	}, error) {
		p, err := e.RemoveParticipant(ctx, input.ConflictID, input.ParticipantID, input.ParticipantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Participant `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-perspective",
		Method:      http.MethodPut,
		Path:        "/conflicts/{conflict_id}/participants/{participant_id}/perspective",
		Summary:     "Update a participant's perspective",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID    string             `path:"conflict_id"`
		ParticipantID string             `path:"participant_id"`
		Body          PerspectiveRequest `json:"body"`
	}) (*struct {
		Body domain.Participant `json:"body"`
	}, error) {
		p, err := e.UpdatePerspective(ctx, input.ConflictID, input.ParticipantID, perspectiveFromRequest(&input.Body), input.ParticipantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Participant `json:"body"`
		}{Body: p}, nil
	})
}

func registerGoals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-goal",
		Method:        http.MethodPost,
		Path:          "/conflicts/{conflict_id}/goals",
		Summary:       "Add resolution goal",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string         `path:"conflict_id"`
		Body       AddGoalRequest `json:"body"`
	}) (*struct {
		Body domain.ResolutionGoal `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		g, err := e.AddGoal(ctx, input.ConflictID, input.Body.Title, stringOrEmpty(input.Body.Description), input.Body.Priority, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ResolutionGoal `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/goals",
		Summary:     "List resolution goals",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
	}) (*struct {
		Body []domain.ResolutionGoal `json:"body"`
	}, error) {
		if _, err := e.Repo.GetConflict(ctx, input.ConflictID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListGoals(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ResolutionGoal `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-session",
		Method:        http.MethodPost,
		Path:          "/conflicts/{conflict_id}/sessions",
		Summary:       "Open mediation session",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string             `path:"conflict_id"`
		Body       OpenSessionRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		s, err := e.OpenSession(ctx, input.ConflictID, stringOrEmpty(input.Body.FacilitatorID), "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/sessions",
		Summary:     "List sessions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
	}) (*struct {
		Body []domain.Session `json:"body"`
	}, error) {
		if _, err := e.Repo.GetConflict(ctx, input.ConflictID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSessions(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Session `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-session",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/sessions/current",
		Summary:     "Get the open session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		s, err := e.CurrentSession(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "phase-completion",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/sessions/current/completion",
		Summary:     "Evaluate the current phase",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
	}) (*struct {
		Body PhaseCompletionResponse `json:"body"`
	}, error) {
		phase, eval, err := e.EvaluateCurrentPhase(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PhaseCompletionResponse `json:"body"`
		}{Body: PhaseCompletionResponse{
			Phase:           phase,
			Complete:        eval.Complete,
			Percentage:      eval.Percentage,
			Outcomes:        eval.Outcomes,
			Recommendations: eval.Recommendations,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-phase",
		Method:      http.MethodPost,
		Path:        "/conflicts/{conflict_id}/sessions/current/advance",
		Summary:     "Advance to the next phase",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
		ActorID    string `header:"X-Actor-Id"`
	}) (*struct {
		Body AdvancePhaseResponse `json:"body"`
	}, error) {
		s, result, err := e.AdvancePhase(ctx, input.ConflictID, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdvancePhaseResponse `json:"body"`
		}{Body: AdvancePhaseResponse{
			Session: s,
			Result:  result,
			Closed:  s.Status == "closed",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-session",
		Method:      http.MethodPost,
		Path:        "/conflicts/{conflict_id}/sessions/current/close",
		Summary:     "Close the open session",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string              `path:"conflict_id"`
		ActorID    string              `header:"X-Actor-Id"`
		Body       CloseSessionRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		s, err := e.CloseSession(ctx, input.ConflictID, input.Body.Satisfaction, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-message",
		Method:        http.MethodPost,
		Path:          "/conflicts/{conflict_id}/sessions/current/messages",
		Summary:       "Post a message in the open session",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string             `path:"conflict_id"`
		Body       PostMessageRequest `json:"body"`
	}) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		if input.Body.SenderID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "sender_id is required", nil)
		}
		opts := engine.MessageOptions{
			ConflictID: input.ConflictID,
			SenderID:   input.Body.SenderID,
			Type:       input.Body.Type,
			Content:    input.Body.Content,
		}
		if input.Body.Emotion != nil {
			opts.Emotion = &engine.EmotionPoint{
				Emotion:   input.Body.Emotion.Emotion,
				Intensity: input.Body.Emotion.Intensity,
			}
		}
		m, err := e.PostMessage(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-session-messages",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/sessions/{session_id}/messages",
		Summary:     "List session messages",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
		SessionID  string `path:"session_id"`
		Limit      int    `query:"limit" default:"100"`
	}) (*struct {
		Body []domain.Message `json:"body"`
	}, error) {
		s, err := e.Repo.GetSession(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		if s.ConflictID != input.ConflictID {
			return nil, handleError(repo.ErrNotFound)
		}
		items, err := e.Repo.ListSessionMessages(ctx, input.SessionID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Message `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerAgreements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "propose-agreement",
		Method:        http.MethodPost,
		Path:          "/conflicts/{conflict_id}/agreements",
		Summary:       "Propose agreement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID string                  `path:"conflict_id"`
		Body       ProposeAgreementRequest `json:"body"`
	}) (*struct {
		Body domain.Agreement `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if input.Body.ProposedBy == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "proposed_by is required", nil)
		}
		a, err := e.ProposeAgreement(ctx, engine.AgreementProposeOptions{
			ConflictID: input.ConflictID,
			Title:      input.Body.Title,
			Terms:      input.Body.Terms,
			ProposedBy: input.Body.ProposedBy,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agreement `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agreements",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/agreements",
		Summary:     "List agreements",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
	}) (*struct {
		Body []domain.Agreement `json:"body"`
	}, error) {
		if _, err := e.Repo.GetConflict(ctx, input.ConflictID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAgreements(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Agreement `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agreement",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/agreements/{agreement_id}",
		Summary:     "Get agreement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID  string `path:"conflict_id"`
		AgreementID string `path:"agreement_id"`
	}) (*struct {
		Body domain.Agreement `json:"body"`
	}, error) {
		a, err := e.Repo.GetAgreement(ctx, input.AgreementID)
		if err != nil {
			return nil, handleError(err)
		}
		if a.ConflictID != input.ConflictID {
			return nil, handleError(repo.ErrNotFound)
		}
		return &struct {
			Body domain.Agreement `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cast-vote",
		Method:      http.MethodPost,
		Path:        "/conflicts/{conflict_id}/agreements/{agreement_id}/votes",
		Summary:     "Vote on agreement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID  string          `path:"conflict_id"`
		AgreementID string          `path:"agreement_id"`
		Body        CastVoteRequest `json:"body"`
	}) (*struct {
		Body domain.Agreement `json:"body"`
	}, error) {
		if input.Body.ParticipantID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "participant_id is required", nil)
		}
		a, err := e.CastVote(ctx, input.ConflictID, input.AgreementID, input.Body.ParticipantID, input.Body.Choice)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agreement `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-agreement",
		Method:      http.MethodPatch,
		Path:        "/conflicts/{conflict_id}/agreements/{agreement_id}/status",
		Summary:     "Mark agreement implemented, violated or modified",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConflictID  string               `path:"conflict_id"`
		AgreementID string               `path:"agreement_id"`
		Body        MarkAgreementRequest `json:"body"`
	}) (*struct {
		Body domain.Agreement `json:"body"`
	}, error) {
		a, err := e.MarkAgreement(ctx, input.ConflictID, input.AgreementID, input.Body.Status, stringOrEmpty(input.Body.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agreement `json:"body"`
		}{Body: a}, nil
	})
}

func registerDynamics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-dynamics",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/dynamics",
		Summary:     "Get group dynamics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
		Refresh    bool   `query:"refresh"`
	}) (*struct {
		Body domain.GroupDynamics `json:"body"`
	}, error) {
		if input.Refresh {
			if err := e.RefreshDynamics(ctx, input.ConflictID); err != nil {
				return nil, handleError(err)
			}
		}
		c, err := e.Repo.GetConflict(ctx, input.ConflictID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GroupDynamics `json:"body"`
		}{Body: c.Dynamics}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/conflicts/{conflict_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConflictID string `path:"conflict_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:",conflict,participant,session,agreement,goal,message"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := e.Repo.GetConflict(ctx, input.ConflictID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.ConflictID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, it := range items {
			resp.Items = append(resp.Items, eventResponse(it))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
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

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
