// Package backend sends create, update and delete requests to the store
// behind the records sheet.
//
// Three stores are provided: the Apps-Script web endpoint (JSON over HTTP
// POST), a local SQLite database with one column per sheet header, and the
// Google Sheets API. Every store reports failure the same way: the returned
// error matches errors.ErrOperationFailed or carries CategoryBackend, and
// any message from the store is passed through untouched. Stores never
// retry.
package backend

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/errors"
)

// Collection names used by the Apps-Script endpoint.
const (
	RecordsCollection  = "Controle de Mapas"
	AuxiliarCollection = "Auxiliar"
	UsersCollection    = "Usuarios"
)

// Actions understood by the Apps-Script endpoint.
const (
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionDelete         = "delete"
	ActionUpdateConfig   = "updateConfig"
	ActionUpdateUsers    = "updateUsers"
	ActionChangePassword = "changePassword"
)

// Store applies record operations to a backing store.
type Store interface {
	Create(ctx context.Context, req *CreateRequest) error
	Update(ctx context.Context, req *UpdateRequest) error
	Delete(ctx context.Context, req *DeleteRequest) error
	Name() string
}

// Administrator is a store that also maintains the auxiliary and users
// sheets. Only the Apps-Script endpoint offers it.
type Administrator interface {
	UpdateConfig(ctx context.Context, aux *directory.Auxiliar) error
	UpdateUsers(ctx context.Context, users *directory.Users) error
	ChangePassword(ctx context.Context, role directory.Role, user, newPassword string) error
}

// Lister is a store that can also read its records back.
type Lister interface {
	List(ctx context.Context) ([]*models.Record, error)
}

// CreateRequest adds one record.
type CreateRequest struct {
	Collection string
	Fields     map[models.Field]string
}

// UpdateRequest applies a change-set to one record. Both the key and the
// row reference are carried so that keyed and positional stores can serve
// it.
type UpdateRequest struct {
	Collection string
	KeyColumn  string
	KeyValue   string
	Ref        models.RowRef
	Changes    models.ChangeSet
}

// DeleteRequest removes one record.
type DeleteRequest struct {
	Collection string
	KeyValue   string
	Ref        models.RowRef
}

// NewUpdateRequest targets rec with cs. An empty change-set returns
// errors.ErrNothingToUpdate so the caller can skip the round trip.
func NewUpdateRequest(collection string, rec *models.Record, cs models.ChangeSet) (*UpdateRequest, error) {
	if cs.IsEmpty() {
		return nil, errors.ErrNothingToUpdate
	}
	return &UpdateRequest{
		Collection: collectionOr(collection),
		KeyColumn:  strings.TrimSpace(rec.KeyColumn),
		KeyValue:   rec.ID,
		Ref:        rec.Ref,
		Changes:    cs,
	}, nil
}

// NewDeleteRequest targets rec for removal.
func NewDeleteRequest(collection string, rec *models.Record) *DeleteRequest {
	return &DeleteRequest{
		Collection: collectionOr(collection),
		KeyValue:   rec.ID,
		Ref:        rec.Ref,
	}
}

func collectionOr(c string) string {
	if strings.TrimSpace(c) == "" {
		return RecordsCollection
	}
	return c
}

// Payload is the flat JSON object posted to the Apps-Script endpoint.
type Payload map[string]interface{}

// Action returns the payload's action tag.
func (p Payload) Action() string {
	s, _ := p["action"].(string)
	return s
}

// RequestID returns the id stamped on the payload.
func (p Payload) RequestID() string {
	s, _ := p["requestId"].(string)
	return s
}

func (p Payload) stamp(action, collection string) Payload {
	p["action"] = action
	p["sheetName"] = collection
	p["sheet"] = collection
	p["requestId"] = uuid.NewString()
	return p
}

// Payload builds the create payload: the record fields first, then the
// action and collection, which win over a field of the same name.
func (r *CreateRequest) Payload() Payload {
	p := Payload{}
	for f, v := range r.Fields {
		p[string(f)] = v
	}
	return p.stamp(ActionCreate, collectionOr(r.Collection))
}

// Payload builds the update payload. Change-set keys are merged at the top
// level; the addressing keys are written after them and win on collision.
// rowIndex and row are null for records without a physical row.
func (r *UpdateRequest) Payload() Payload {
	p := Payload{}
	for k, v := range r.Changes {
		p[k] = v
	}
	p.stamp(ActionUpdate, collectionOr(r.Collection))
	p["filterColumn"] = r.KeyColumn
	p["filterValue"] = r.KeyValue
	p["rowIndex"] = rowOrNil(r.Ref)
	p["row"] = rowOrNil(r.Ref)
	return p
}

// Payload builds the delete payload.
func (r *DeleteRequest) Payload() Payload {
	p := Payload{}.stamp(ActionDelete, collectionOr(r.Collection))
	p["rowIndex"] = rowOrNil(r.Ref)
	p["filterValue"] = r.KeyValue
	return p
}

func rowOrNil(ref models.RowRef) interface{} {
	if ref.IsPositional() {
		return ref.RowNumber
	}
	return nil
}

// Response is the reply of the Apps-Script endpoint.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports an explicit success; anything else is a failure.
func (r *Response) OK() bool {
	return r != nil && r.Status == "success"
}

// NotApplied reports whether err says a store operation did not take
// effect.
func NotApplied(err error) bool {
	appErr, ok := errors.AsAppError(err)
	return ok && appErr.Category == errors.CategoryBackend
}

func notApplied(operation, message string, cause error) error {
	return errors.BackendError(errors.CodeOperationFailed, operation, message, cause)
}
