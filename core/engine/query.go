package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/artpar/docgate/core/doctype"
	"github.com/artpar/docgate/core/permission"
	"github.com/artpar/docgate/core/validation"
	"github.com/artpar/docgate/pkg/docerror"
	"github.com/artpar/docgate/ports"
)

// QueryDocumentsRequest selects documents of one type. Exactly one of the
// three modes applies per call: QueryAllDocuments ignores FilterName and
// IDs, QueryDocumentsByFilter uses FilterName and FilterParams,
// QueryDocumentsByIDs uses IDs.
type QueryDocumentsRequest struct {
	RoleNames   []string
	DocTypeName string

	// FieldNames are the declared and calculated fields the caller wants.
	// Empty means every declared field plus every calculated field.
	FieldNames []string

	// FilterName and FilterParams select the document type filter for
	// QueryDocumentsByFilter.
	FilterName   string
	FilterParams map[string]any

	// IDs are the document ids for QueryDocumentsByIDs.
	IDs []string

	StoreOptions ports.Options
}

// DeprecatedField flags a deprecated declared field present in a query
// result. The field is never stripped; the flag tells the caller what to
// migrate to.
type DeprecatedField struct {
	Name    string
	Message string
}

// QueryDocumentsResult reports a query outcome.
type QueryDocumentsResult struct {
	Docs []ports.Doc

	// DeprecatedFields lists the deprecated fields present in Docs, sorted
	// by name.
	DeprecatedFields []DeprecatedField
}

// QueryAllDocuments retrieves every document of the type. The document
// type's policy must allow whole-collection fetches.
func (e *Engine) QueryAllDocuments(ctx context.Context, req QueryDocumentsRequest) (result QueryDocumentsResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("query", req.DocTypeName, start, err) }()

	dt, plan, err := e.prepareQuery(req)
	if err != nil {
		return QueryDocumentsResult{}, err
	}
	if !dt.Policy.CanFetchWholeCollection {
		return QueryDocumentsResult{}, &docerror.ActionForbiddenError{DocTypeName: dt.Name, Action: "whole-collection fetch"}
	}

	selected, err := e.store.SelectAll(ctx, dt.Name, dt.PluralName, plan.storeFields, req.StoreOptions)
	if err != nil {
		return QueryDocumentsResult{}, err
	}
	return e.assembleQueryResult(dt, plan, selected.Docs)
}

// QueryDocumentsByFilter retrieves the documents matching a named filter.
// The filter implementation converts validated parameters into the storage
// backend's filter value, which travels through the contract untouched.
func (e *Engine) QueryDocumentsByFilter(ctx context.Context, req QueryDocumentsRequest) (result QueryDocumentsResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("query", req.DocTypeName, start, err) }()

	dt, plan, err := e.prepareQuery(req)
	if err != nil {
		return QueryDocumentsResult{}, err
	}

	filter, ok := dt.Filters[req.FilterName]
	if !ok {
		return QueryDocumentsResult{}, &docerror.UnknownFilterError{DocTypeName: dt.Name, FilterName: req.FilterName}
	}

	params := req.FilterParams
	if params == nil {
		params = map[string]any{}
	}
	if err := e.validators.Validate(dt.Name, validation.PurposeFilterParams, req.FilterName, params); err != nil {
		return QueryDocumentsResult{}, err
	}

	var filterValue any
	err = runHook(dt.Name, "filter "+req.FilterName, func() error {
		var hookErr error
		filterValue, hookErr = filter.Implementation(params)
		return hookErr
	})
	if err != nil {
		return QueryDocumentsResult{}, err
	}

	selected, err := e.store.SelectByFilter(ctx, dt.Name, dt.PluralName, plan.storeFields, filterValue, req.StoreOptions)
	if err != nil {
		return QueryDocumentsResult{}, err
	}
	return e.assembleQueryResult(dt, plan, selected.Docs)
}

// QueryDocumentsByIDs retrieves the documents whose ids appear in req.IDs.
// Missing ids are simply absent from the result.
func (e *Engine) QueryDocumentsByIDs(ctx context.Context, req QueryDocumentsRequest) (result QueryDocumentsResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("query", req.DocTypeName, start, err) }()

	dt, plan, err := e.prepareQuery(req)
	if err != nil {
		return QueryDocumentsResult{}, err
	}

	selected, err := e.store.SelectByIDs(ctx, dt.Name, dt.PluralName, plan.storeFields, req.IDs, req.StoreOptions)
	if err != nil {
		return QueryDocumentsResult{}, err
	}
	return e.assembleQueryResult(dt, plan, selected.Docs)
}

// ExistsRequest asks whether a document is stored, without retrieving it.
type ExistsRequest struct {
	RoleNames    []string
	DocTypeName  string
	ID           string
	StoreOptions ports.Options
}

// ExistsResult reports an existence check.
type ExistsResult struct {
	Found bool
}

// DocumentExists reports whether a document with the id is stored. It is
// permission-gated like a query.
func (e *Engine) DocumentExists(ctx context.Context, req ExistsRequest) (result ExistsResult, err error) {
	start := e.clock.Now()
	defer func() { e.finish("exists", req.DocTypeName, start, err) }()

	dt, err := e.docType(req.DocTypeName)
	if err != nil {
		return ExistsResult{}, err
	}
	if err := permission.Require(e.perms.CanSelect(req.RoleNames, dt.Name, nil), req.RoleNames, dt.Name, permission.ActionQuery); err != nil {
		return ExistsResult{}, err
	}

	exists, err := e.store.Exists(ctx, dt.Name, dt.PluralName, req.ID, req.StoreOptions)
	if err != nil {
		return ExistsResult{}, err
	}
	return ExistsResult{Found: exists.Found}, nil
}

// queryPlan is the resolved field selection of one query.
type queryPlan struct {
	// declared are the requested declared field names.
	declared []string

	// calculated are the requested calculated field names.
	calculated []string

	// storeFields are the field names the backend must return: the
	// requested declared fields plus every input of the requested
	// calculated fields. Empty means all.
	storeFields []string

	// keep marks the fields that may remain on result documents. Inputs
	// fetched solely for calculation are stripped unless requested.
	keep map[string]bool
}

// prepareQuery resolves the requested field names and checks the query
// permission. It runs before any storage touch.
func (e *Engine) prepareQuery(req QueryDocumentsRequest) (*doctype.DocType, queryPlan, error) {
	dt, err := e.docType(req.DocTypeName)
	if err != nil {
		return nil, queryPlan{}, err
	}

	plan := queryPlan{keep: map[string]bool{}}
	if len(req.FieldNames) == 0 {
		for name := range dt.Fields {
			plan.declared = append(plan.declared, name)
			plan.keep[name] = true
		}
		for name := range dt.CalculatedFields {
			plan.calculated = append(plan.calculated, name)
			plan.keep[name] = true
		}
		// storeFields stays empty: the backend returns everything.
	} else {
		inputs := map[string]bool{}
		for _, name := range req.FieldNames {
			if _, ok := dt.Fields[name]; ok {
				plan.declared = append(plan.declared, name)
				plan.keep[name] = true
				continue
			}
			if calc, ok := dt.CalculatedFields[name]; ok {
				plan.calculated = append(plan.calculated, name)
				plan.keep[name] = true
				for _, input := range calc.InputFields {
					inputs[input] = true
				}
				continue
			}
			return nil, queryPlan{}, &docerror.ValidationError{
				DocTypeName: dt.Name,
				Purpose:     "field selection",
				Violations:  []docerror.Violation{{Path: "/" + name, Message: fmt.Sprintf("doc type %q has no field %q", dt.Name, name)}},
			}
		}
		plan.storeFields = append(plan.storeFields, plan.declared...)
		for input := range inputs {
			if !plan.keep[input] {
				plan.storeFields = append(plan.storeFields, input)
			}
		}
		sort.Strings(plan.storeFields)
	}

	// An empty request means every field, so the field-level permission
	// check must see the resolved names, not the empty list.
	requested := make([]string, 0, len(plan.declared)+len(plan.calculated))
	requested = append(requested, plan.declared...)
	requested = append(requested, plan.calculated...)
	if err := permission.Require(e.perms.CanSelect(req.RoleNames, dt.Name, requested), req.RoleNames, dt.Name, permission.ActionQuery); err != nil {
		return nil, queryPlan{}, err
	}
	return dt, plan, nil
}

// assembleQueryResult computes requested calculated fields, strips
// calculation-only inputs and flags deprecated fields present in the
// result.
func (e *Engine) assembleQueryResult(dt *doctype.DocType, plan queryPlan, docs []ports.Doc) (QueryDocumentsResult, error) {
	deprecated := map[string]string{}

	for _, doc := range docs {
		for _, name := range plan.calculated {
			calc := dt.CalculatedFields[name]
			inputs := make(map[string]any, len(calc.InputFields))
			for _, input := range calc.InputFields {
				inputs[input] = doc[input]
			}
			err := runHook(dt.Name, "calculated field "+name, func() error {
				doc[name] = calc.Value(inputs)
				return nil
			})
			if err != nil {
				return QueryDocumentsResult{}, err
			}
		}
		for name := range doc {
			if !plan.keep[name] && !ports.IsSystemField(name) {
				delete(doc, name)
			}
		}
		for name, field := range dt.Fields {
			if field.Deprecation == "" {
				continue
			}
			if _, present := doc[name]; present {
				deprecated[name] = field.Deprecation
			}
		}
	}

	result := QueryDocumentsResult{Docs: docs}
	names := make([]string, 0, len(deprecated))
	for name := range deprecated {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result.DeprecatedFields = append(result.DeprecatedFields, DeprecatedField{Name: name, Message: deprecated[name]})
	}
	return result, nil
}
