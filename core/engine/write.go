package engine

import (
	"context"
	"fmt"

	"github.com/artpar/docgate/core/doctype"
	"github.com/artpar/docgate/core/permission"
	"github.com/artpar/docgate/core/validation"
	"github.com/artpar/docgate/pkg/docerror"
	"github.com/artpar/docgate/ports"
)

// CreateDocumentRequest asks for a new document built by the type's
// constructor.
type CreateDocumentRequest struct {
	RoleNames   []string
	DocTypeName string

	// ID, when set, is used instead of a generated id. Useful when the id
	// is naturally known to the caller.
	ID string

	// ConstructorParams are validated against the constructor's parameter
	// schema before the implementation runs.
	ConstructorParams map[string]any

	// StoreOptions travel to the storage backend untouched.
	StoreOptions ports.Options
}

// CreateDocumentResult reports a create outcome.
type CreateDocumentResult struct {
	// IsNew is false when the write overwrote a document the engine did not
	// know about.
	IsNew bool

	// Doc is the document as written, minus the backend-assigned version.
	Doc ports.Doc
}

// CreateDocument validates constructor parameters, runs the constructor,
// assembles a fresh record and writes it unconditionally.
func (e *Engine) CreateDocument(ctx context.Context, req CreateDocumentRequest) (result CreateDocumentResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("create", req.DocTypeName, start, err) }()

	dt, err := e.docType(req.DocTypeName)
	if err != nil {
		return CreateDocumentResult{}, err
	}
	if err := permission.Require(e.perms.CanCreate(req.RoleNames, dt.Name), req.RoleNames, dt.Name, permission.ActionCreate); err != nil {
		return CreateDocumentResult{}, err
	}

	params := req.ConstructorParams
	if params == nil {
		params = map[string]any{}
	}
	if err := e.validators.Validate(dt.Name, validation.PurposeConstructorParams, "", params); err != nil {
		return CreateDocumentResult{}, err
	}

	var fields map[string]any
	err = runHook(dt.Name, "ctor", func() error {
		var hookErr error
		fields, hookErr = dt.Ctor.Implementation(params)
		return hookErr
	})
	if err != nil {
		return CreateDocumentResult{}, err
	}

	doc := ports.Doc{}
	for name, field := range dt.Fields {
		if field.Default != nil {
			doc[name] = field.Default
		}
	}
	for name, value := range fields {
		doc[name] = value
	}

	id := req.ID
	if id == "" {
		id = e.idgen.New()
	}
	doc[ports.FieldID] = id
	doc[ports.FieldDocType] = dt.Name
	doc[ports.FieldDocOpIDs] = []string{}
	e.stamp(doc)

	if err := e.validators.Validate(dt.Name, validation.PurposeDocInstance, "", doc); err != nil {
		return CreateDocumentResult{}, err
	}
	if err := e.validateHook(dt, doc); err != nil {
		return CreateDocumentResult{}, err
	}
	if err := e.preSaveHook(dt, doc); err != nil {
		return CreateDocumentResult{}, err
	}

	upsert, err := e.store.Upsert(ctx, dt.Name, dt.PluralName, doc, "", req.StoreOptions)
	if err != nil {
		return CreateDocumentResult{}, err
	}

	return CreateDocumentResult{IsNew: upsert.Code == ports.UpsertCreated, Doc: doc}, nil
}

// ReplaceDocumentRequest asks for a wholesale overwrite of a document.
type ReplaceDocumentRequest struct {
	RoleNames   []string
	DocTypeName string

	// Doc is the complete replacement instance, system fields included.
	Doc ports.Doc

	// RequiredVersion, when set, makes the write conditional on the stored
	// document still carrying that version.
	RequiredVersion string

	StoreOptions ports.Options
}

// ReplaceDocumentResult reports a replace outcome.
type ReplaceDocumentResult struct {
	// IsNew means no document with the id existed before.
	IsNew bool
}

// ReplaceDocument validates and writes a complete caller-supplied instance.
// The document type's policy must allow replaces.
func (e *Engine) ReplaceDocument(ctx context.Context, req ReplaceDocumentRequest) (result ReplaceDocumentResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("replace", req.DocTypeName, start, err) }()

	dt, err := e.docType(req.DocTypeName)
	if err != nil {
		return ReplaceDocumentResult{}, err
	}
	if !dt.Policy.CanReplaceDocuments {
		return ReplaceDocumentResult{}, &docerror.ActionForbiddenError{DocTypeName: dt.Name, Action: "replace"}
	}
	if err := permission.Require(e.perms.CanReplace(req.RoleNames, dt.Name), req.RoleNames, dt.Name, permission.ActionReplace); err != nil {
		return ReplaceDocumentResult{}, err
	}

	doc := req.Doc.Clone()
	delete(doc, ports.FieldDocVersion)
	e.stamp(doc)

	if err := e.validators.Validate(dt.Name, validation.PurposeDocInstance, "", doc); err != nil {
		return ReplaceDocumentResult{}, err
	}
	if err := e.validateHook(dt, doc); err != nil {
		return ReplaceDocumentResult{}, err
	}
	if err := e.preSaveHook(dt, doc); err != nil {
		return ReplaceDocumentResult{}, err
	}

	upsert, err := e.store.Upsert(ctx, dt.Name, dt.PluralName, doc, req.RequiredVersion, req.StoreOptions)
	if err != nil {
		return ReplaceDocumentResult{}, err
	}
	if upsert.Code == ports.UpsertVersionNotAvailable {
		return ReplaceDocumentResult{}, &docerror.RequiredVersionNotAvailableError{DocTypeName: dt.Name, ID: doc.ID()}
	}

	return ReplaceDocumentResult{IsNew: upsert.Code == ports.UpsertCreated}, nil
}

// PatchDocumentRequest asks for a merge patch of an existing document.
type PatchDocumentRequest struct {
	RoleNames   []string
	DocTypeName string
	ID          string

	// Patch is the merge patch: null deletes a field, any other value
	// overwrites it. Only fields marked canUpdate are accepted.
	Patch map[string]any

	// RequiredVersion, when set, pins the stored version the patch must
	// apply to. When empty the engine uses the version it fetched, and a
	// lost race surfaces as ConflictOnSaveError instead of
	// RequiredVersionNotAvailableError.
	RequiredVersion string

	// OperationID, when set, makes the patch idempotent with the same
	// replay semantics as OperateOnDocument.
	OperationID string

	StoreOptions ports.Options
}

// PatchDocumentResult reports a patch outcome.
type PatchDocumentResult struct {
	// IsUpdated is false when the patch was a replay of an already applied
	// OperationID.
	IsUpdated bool

	// Doc is the document as written, minus the backend-assigned version.
	Doc ports.Doc
}

// PatchDocument fetches the document, applies a validated merge patch and
// writes the result back conditioned on the version it read.
func (e *Engine) PatchDocument(ctx context.Context, req PatchDocumentRequest) (result PatchDocumentResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("patch", req.DocTypeName, start, err) }()

	dt, err := e.docType(req.DocTypeName)
	if err != nil {
		return PatchDocumentResult{}, err
	}
	if err := permission.Require(e.perms.CanPatch(req.RoleNames, dt.Name), req.RoleNames, dt.Name, permission.ActionPatch); err != nil {
		return PatchDocumentResult{}, err
	}

	fetched, err := e.store.Fetch(ctx, dt.Name, dt.PluralName, req.ID, req.StoreOptions)
	if err != nil {
		return PatchDocumentResult{}, err
	}
	if fetched.Doc == nil {
		return PatchDocumentResult{}, &docerror.DocNotFoundError{DocTypeName: dt.Name, ID: req.ID}
	}

	if req.OperationID != "" && fetched.Doc.HasOpID(req.OperationID) {
		return PatchDocumentResult{IsUpdated: false, Doc: fetched.Doc}, nil
	}

	versionExplicit := req.RequiredVersion != ""
	requiredVersion := req.RequiredVersion
	if !versionExplicit {
		requiredVersion = fetched.Doc.DocVersion()
	}

	if err := e.validators.Validate(dt.Name, validation.PurposeMergePatch, "", req.Patch); err != nil {
		return PatchDocumentResult{}, err
	}

	doc := applyMergePatch(fetched.Doc, req.Patch)
	if req.OperationID != "" {
		appendOpID(doc, req.OperationID, dt.MaxOpIDs())
	}
	delete(doc, ports.FieldDocVersion)
	e.stamp(doc)

	return e.saveUpdate(ctx, dt, doc, requiredVersion, versionExplicit, req.StoreOptions)
}

// OperateOnDocumentRequest asks for a named custom mutation.
type OperateOnDocumentRequest struct {
	RoleNames     []string
	DocTypeName   string
	ID            string
	OperationName string

	// OperationID is the idempotency key recorded on the document. A
	// replayed id returns success without re-running the implementation.
	OperationID string

	// Params are validated against the operation's parameter schema.
	Params map[string]any

	StoreOptions ports.Options
}

// OperateOnDocumentResult reports an operate outcome.
type OperateOnDocumentResult struct {
	// IsUpdated is false when the OperationID was already applied.
	IsUpdated bool

	// Doc is the document as written, minus the backend-assigned version.
	Doc ports.Doc
}

// OperateOnDocument runs a named operation against a document. The operation
// produces a partial patch; the engine records the operation id on the
// document and writes both atomically, conditioned on the version it read,
// so a replayed operation cannot double-apply even under concurrent retries.
func (e *Engine) OperateOnDocument(ctx context.Context, req OperateOnDocumentRequest) (result OperateOnDocumentResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("operate", req.DocTypeName, start, err) }()

	dt, err := e.docType(req.DocTypeName)
	if err != nil {
		return OperateOnDocumentResult{}, err
	}
	op, ok := dt.Operations[req.OperationName]
	if !ok {
		return OperateOnDocumentResult{}, &docerror.UnknownOperationError{DocTypeName: dt.Name, OperationName: req.OperationName}
	}
	if err := permission.Require(e.perms.CanOperate(req.RoleNames, dt.Name, req.OperationName), req.RoleNames, dt.Name, permission.ActionOperate); err != nil {
		return OperateOnDocumentResult{}, err
	}

	fetched, err := e.store.Fetch(ctx, dt.Name, dt.PluralName, req.ID, req.StoreOptions)
	if err != nil {
		return OperateOnDocumentResult{}, err
	}
	if fetched.Doc == nil {
		return OperateOnDocumentResult{}, &docerror.DocNotFoundError{DocTypeName: dt.Name, ID: req.ID}
	}

	if req.OperationID != "" && fetched.Doc.HasOpID(req.OperationID) {
		return OperateOnDocumentResult{IsUpdated: false, Doc: fetched.Doc}, nil
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	if err := e.validators.Validate(dt.Name, validation.PurposeOperationParams, req.OperationName, params); err != nil {
		return OperateOnDocumentResult{}, err
	}

	var patch map[string]any
	err = runHook(dt.Name, "operation "+req.OperationName, func() error {
		var hookErr error
		patch, hookErr = op.Implementation(fetched.Doc.Clone(), params)
		return hookErr
	})
	if err != nil {
		return OperateOnDocumentResult{}, err
	}

	for name := range patch {
		if ports.IsSystemField(name) {
			return OperateOnDocumentResult{}, &docerror.InvalidOperationPatchError{
				DocTypeName:   dt.Name,
				OperationName: req.OperationName,
				Reason:        fmt.Sprintf("patch touches system field %q", name),
			}
		}
	}

	doc := applyMergePatch(fetched.Doc, patch)
	if req.OperationID != "" {
		appendOpID(doc, req.OperationID, dt.MaxOpIDs())
	}
	requiredVersion := fetched.Doc.DocVersion()
	delete(doc, ports.FieldDocVersion)
	e.stamp(doc)

	saved, err := e.saveUpdate(ctx, dt, doc, requiredVersion, false, req.StoreOptions)
	if err != nil {
		return OperateOnDocumentResult{}, err
	}
	return OperateOnDocumentResult{IsUpdated: saved.IsUpdated, Doc: saved.Doc}, nil
}

// saveUpdate validates and writes an updated document, mapping a lost
// version race to the error kind matching how the version was chosen.
func (e *Engine) saveUpdate(ctx context.Context, dt *doctype.DocType, doc ports.Doc, requiredVersion string, versionExplicit bool, opts ports.Options) (PatchDocumentResult, error) {
	if err := e.validators.Validate(dt.Name, validation.PurposeDocInstance, "", doc); err != nil {
		return PatchDocumentResult{}, err
	}
	if err := e.validateHook(dt, doc); err != nil {
		return PatchDocumentResult{}, err
	}
	if err := e.preSaveHook(dt, doc); err != nil {
		return PatchDocumentResult{}, err
	}

	upsert, err := e.store.Upsert(ctx, dt.Name, dt.PluralName, doc, requiredVersion, opts)
	if err != nil {
		return PatchDocumentResult{}, err
	}
	if upsert.Code == ports.UpsertVersionNotAvailable {
		if versionExplicit {
			return PatchDocumentResult{}, &docerror.RequiredVersionNotAvailableError{DocTypeName: dt.Name, ID: doc.ID()}
		}
		return PatchDocumentResult{}, &docerror.ConflictOnSaveError{DocTypeName: dt.Name, ID: doc.ID()}
	}

	return PatchDocumentResult{IsUpdated: true, Doc: doc}, nil
}

// DeleteDocumentRequest asks for a document's removal.
type DeleteDocumentRequest struct {
	RoleNames    []string
	DocTypeName  string
	ID           string
	StoreOptions ports.Options
}

// DeleteDocumentResult reports a delete outcome.
type DeleteDocumentResult struct {
	// IsDeleted is false when no document with the id existed. That is a
	// valid terminal outcome, not an error; the delete is already
	// satisfied.
	IsDeleted bool
}

// DeleteDocument removes a document. The document type's policy must allow
// deletes.
func (e *Engine) DeleteDocument(ctx context.Context, req DeleteDocumentRequest) (result DeleteDocumentResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("delete", req.DocTypeName, start, err) }()

	dt, err := e.docType(req.DocTypeName)
	if err != nil {
		return DeleteDocumentResult{}, err
	}
	if !dt.Policy.CanDeleteDocuments {
		return DeleteDocumentResult{}, &docerror.ActionForbiddenError{DocTypeName: dt.Name, Action: "delete"}
	}
	if err := permission.Require(e.perms.CanDelete(req.RoleNames, dt.Name), req.RoleNames, dt.Name, permission.ActionDelete); err != nil {
		return DeleteDocumentResult{}, err
	}

	deleted, err := e.store.DeleteByID(ctx, dt.Name, dt.PluralName, req.ID, req.StoreOptions)
	if err != nil {
		return DeleteDocumentResult{}, err
	}
	return DeleteDocumentResult{IsDeleted: deleted.Code == ports.DeleteDeleted}, nil
}
