package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gratuity-map-service/internal/directory"
	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

// AppScriptConfig configures the Apps-Script web endpoint.
type AppScriptConfig struct {
	Endpoint string        `mapstructure:"endpoint" toml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" toml:"timeout"`
}

// Validate requires an endpoint and a positive timeout.
func (c *AppScriptConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "backend.endpoint", c.Endpoint, nil).
			WithSuggestion("set the Apps-Script deployment URL")
	}
	if c.Timeout <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "backend.timeout", c.Timeout, nil)
	}
	return nil
}

// AppScriptStore posts JSON payloads to an Apps-Script deployment.
type AppScriptStore struct {
	endpoint string
	client   *http.Client
	logger   logger.Logger
}

// NewAppScriptStore creates a store for the configured endpoint.
func NewAppScriptStore(cfg *AppScriptConfig, log logger.Logger) (*AppScriptStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &AppScriptStore{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   log.WithComponent("appscript"),
	}, nil
}

// Name identifies the store in logs.
func (s *AppScriptStore) Name() string { return "appscript" }

// Create posts a create payload.
func (s *AppScriptStore) Create(ctx context.Context, req *CreateRequest) error {
	return s.Send(ctx, req.Payload())
}

// Update posts an update payload.
func (s *AppScriptStore) Update(ctx context.Context, req *UpdateRequest) error {
	return s.Send(ctx, req.Payload())
}

// Delete posts a delete payload.
func (s *AppScriptStore) Delete(ctx context.Context, req *DeleteRequest) error {
	return s.Send(ctx, req.Payload())
}

// UpdateConfig replaces the option lists of the auxiliary sheet.
func (s *AppScriptStore) UpdateConfig(ctx context.Context, aux *directory.Auxiliar) error {
	p := Payload{
		"eventos":   aux.Eventos,
		"motivos":   aux.Motivos,
		"destinos":  aux.Destinos,
		"exercicio": aux.ExercicioCorrente,
	}
	return s.Send(ctx, p.stamp(ActionUpdateConfig, AuxiliarCollection))
}

// UpdateUsers replaces the unit logins and admin credentials.
func (s *AppScriptStore) UpdateUsers(ctx context.Context, users *directory.Users) error {
	p := Payload{
		"users":         users.Users,
		"adminEmail":    users.AdminEmail,
		"adminPassword": users.AdminPassword,
	}
	return s.Send(ctx, p.stamp(ActionUpdateUsers, UsersCollection))
}

// ChangePassword sets a new password for a unit or for the admin.
func (s *AppScriptStore) ChangePassword(ctx context.Context, role directory.Role, user, newPassword string) error {
	p := Payload{
		"user":        user,
		"newPassword": newPassword,
		"type":        string(role),
	}
	return s.Send(ctx, p.stamp(ActionChangePassword, UsersCollection))
}

// Send posts p as text/plain JSON, which the endpoint accepts without a
// CORS preflight, and succeeds only on an explicit success reply.
func (s *AppScriptStore) Send(ctx context.Context, p Payload) error {
	action := p.Action()
	log := s.logger.WithFields(logger.Fields{
		"action":     action,
		"request_id": p.RequestID(),
	})

	body, err := json.Marshal(p)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode "+action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "backend.endpoint", s.endpoint, err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		code := errors.CodeConnectionFailed
		if ctx.Err() != nil {
			code = errors.CodeTimeout
		}
		log.WithError(err).Warn("Request failed")
		return notApplied(action, "", errors.NetworkError(code, s.endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Warn("Endpoint returned an HTTP error")
		return notApplied(action, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return notApplied(action, "", errors.NetworkError(errors.CodeConnectionFailed, s.endpoint, err))
	}

	var reply Response
	if err := json.Unmarshal(data, &reply); err != nil {
		log.WithError(err).Warn("Unreadable reply")
		return errors.BackendError(errors.CodeMalformedReply, action, "", err)
	}
	if !reply.OK() {
		log.WithField("message", reply.Message).Warn("Endpoint rejected the request")
		return notApplied(action, reply.Message, nil)
	}

	log.Debug("Request applied")
	return nil
}
