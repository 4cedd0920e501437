package dashboard

import (
	"context"
	"strconv"
	"strings"

	"gratuity-map-service/internal/backend"
	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

// WithAuxiliar reads the option lists of the create form from the
// auxiliary sheet.
func WithAuxiliar(src parsers.GridSource) Option {
	return func(s *Service) { s.auxiliar = src }
}

// Options returns the option lists of the create form. Without an
// auxiliary sheet they are derived from the records st can see, and the
// fiscal year is the current one.
func (s *Service) Options(ctx context.Context, st State) (*directory.Auxiliar, error) {
	var aux *directory.Auxiliar
	if s.auxiliar != nil {
		grid, err := s.auxiliar.FetchGrid(ctx)
		if err != nil {
			s.logger.WithError(err).WithField("source", s.auxiliar.Describe()).Error("Failed to fetch the auxiliary sheet")
			return nil, err
		}
		aux = directory.ParseAuxiliar(grid)
	} else {
		aux = &directory.Auxiliar{
			Eventos:  st.Events(),
			Motivos:  []string{},
			Destinos: []string{},
			OMs:      st.Units(),
			Mapas:    []string{},
		}
	}
	if aux.ExercicioCorrente == "" {
		aux.ExercicioCorrente = strconv.Itoa(s.now().Year())
	}
	if st.Viewer.Role == directory.RoleOM {
		aux.OMs = []string{st.Viewer.OM}
	}
	return aux, nil
}

// UpdateConfig replaces the event, motive and destination lists and the
// fiscal year. Administrator only.
func (s *Service) UpdateConfig(ctx context.Context, st State, aux *directory.Auxiliar) error {
	admin, err := s.administrator(st, "update config")
	if err != nil {
		return err
	}
	if aux == nil {
		return errors.ValidationError(errors.CodeMissingField, "config", nil, nil)
	}
	clean := &directory.Auxiliar{
		Eventos:           trimAll(aux.Eventos),
		Motivos:           trimAll(aux.Motivos),
		Destinos:          trimAll(aux.Destinos),
		ExercicioCorrente: strings.TrimSpace(aux.ExercicioCorrente),
	}
	if clean.ExercicioCorrente == "" {
		return errors.ValidationError(errors.CodeMissingField, "exercicio", aux.ExercicioCorrente, nil)
	}

	log := s.logger.WithFields(logger.Fields{
		"eventos":   len(clean.Eventos),
		"exercicio": clean.ExercicioCorrente,
	})
	if err := admin.UpdateConfig(ctx, clean); err != nil {
		log.WithError(err).Warn("Config update not applied")
		return err
	}
	log.Info("Config updated")
	return nil
}

// UpdateUsers replaces the unit logins and the admin credentials.
// Administrator only. Every unit needs a password and the admin password
// may not be emptied.
func (s *Service) UpdateUsers(ctx context.Context, st State, users *directory.Users) error {
	admin, err := s.administrator(st, "update users")
	if err != nil {
		return err
	}
	if users == nil || strings.TrimSpace(users.AdminPassword) == "" {
		return errors.ValidationError(errors.CodeMissingField, "adminPassword", "", nil).
			WithSuggestion("an empty admin password would lock the administrator out")
	}
	for _, u := range users.Users {
		if strings.TrimSpace(u.OM) == "" {
			return errors.ValidationError(errors.CodeMissingField, "om", u.OM, nil)
		}
		if strings.TrimSpace(u.Senha) == "" {
			return errors.ValidationError(errors.CodeMissingField, "senha", u.OM, nil)
		}
	}

	log := s.logger.WithField("units", len(users.Users))
	if err := admin.UpdateUsers(ctx, users); err != nil {
		log.WithError(err).Warn("Users update not applied")
		return err
	}
	log.Info("Users updated")
	return nil
}

// ChangePassword sets a new password for the viewer: the unit login of a
// unit viewer, or the admin login, identified by its e-mail.
func (s *Service) ChangePassword(ctx context.Context, st State, newPassword string) error {
	admin, ok := s.store.(backend.Administrator)
	if !ok {
		return unsupported(s.store)
	}
	newPassword = strings.TrimSpace(newPassword)
	if newPassword == "" {
		return errors.ValidationError(errors.CodeMissingField, "newPassword", "", nil)
	}

	user := st.Viewer.OM
	if st.Viewer.Role == directory.RoleAdmin {
		user = st.Viewer.Email
		if user == "" {
			user = string(directory.RoleAdmin)
		}
	}
	if user == "" {
		return errors.AuthError(errors.CodeForbidden, "change password")
	}

	log := s.logger.WithFields(logger.Fields{"role": st.Viewer.Role, "user": user})
	if err := admin.ChangePassword(ctx, st.Viewer.Role, user, newPassword); err != nil {
		log.WithError(err).Warn("Password change not applied")
		return err
	}
	log.Info("Password changed")
	return nil
}

func (s *Service) administrator(st State, action string) (backend.Administrator, error) {
	if st.Viewer.Role != directory.RoleAdmin {
		return nil, errors.AuthError(errors.CodeForbidden, action)
	}
	admin, ok := s.store.(backend.Administrator)
	if !ok {
		return nil, unsupported(s.store)
	}
	return admin, nil
}

func unsupported(store backend.Store) error {
	return errors.ConfigurationError(errors.CodeConfigConflict, "backend.kind", store.Name(), nil).
		WithSuggestion("the auxiliary and users sheets are maintained through the appscript backend")
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
