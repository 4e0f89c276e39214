// Package validation checks the shape of request payloads against embedded
// JSON Schemas. All violations are collected; nothing short-circuits on the first.
package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"tzscheduler/internal/apperr"
	"tzscheduler/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://tzscheduler.local/schemas/"

type Validator struct {
	create   *jsonschema.Schema
	update   *jsonschema.Schema
	list     *jsonschema.Schema
	login    *jsonschema.Schema
	register *jsonschema.Schema
	refresh  *jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	v := &Validator{}
	targets := map[string]**jsonschema.Schema{
		"create_event.json": &v.create,
		"update_event.json": &v.update,
		"list_events.json":  &v.list,
		"login.json":        &v.login,
		"register.json":     &v.register,
		"refresh.json":      &v.refresh,
	}
	for name := range targets {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", name, err)
		}
	}
	for name, dst := range targets {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		*dst = s
	}
	return v, nil
}

// CreateEvent validates a creation body.
func (v *Validator) CreateEvent(body []byte) (model.CreateEventInput, error) {
	return decodeInto[model.CreateEventInput](v.create, body)
}

// UpdateEvent validates a partial update body; at least one field is required.
func (v *Validator) UpdateEvent(body []byte) (model.EventPatch, error) {
	return decodeInto[model.EventPatch](v.update, body)
}

func (v *Validator) Login(body []byte) (model.LoginInput, error) {
	return decodeInto[model.LoginInput](v.login, body)
}

func (v *Validator) Register(body []byte) (model.RegisterInput, error) {
	return decodeInto[model.RegisterInput](v.register, body)
}

// RefreshToken returns the refresh token carried by body.
func (v *Validator) RefreshToken(body []byte) (string, error) {
	in, err := decodeInto[struct {
		RefreshToken string `json:"refreshToken"`
	}](v.refresh, body)
	return in.RefreshToken, err
}

func decodeInto[T any](s *jsonschema.Schema, body []byte) (T, error) {
	var out T
	doc, err := decode(body)
	if err != nil {
		return out, err
	}
	if err := check(s, doc); err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, apperr.Validation("", "request body must be a JSON object")
	}
	return out, nil
}

// ListEvents validates list query parameters and normalizes the participant
// filter into a model.ParticipantFilter.
func (v *Validator) ListEvents(q url.Values) (model.ListEventsQuery, error) {
	var out model.ListEventsQuery

	doc := map[string]any{}
	filter, hasFilter := NormalizeFilter(q["userId"])
	if hasFilter {
		ids := filter.IDs()
		arr := make([]any, len(ids))
		for i, id := range ids {
			arr[i] = id
		}
		doc["userId"] = arr
	}
	for _, k := range []string{"from", "to", "viewerTimezone"} {
		if q.Has(k) {
			doc[k] = q.Get(k)
		}
	}
	for _, k := range []string{"limit", "page"} {
		if !q.Has(k) {
			continue
		}
		raw := strings.TrimSpace(q.Get(k))
		if n, err := strconv.Atoi(raw); err == nil {
			doc[k] = json.Number(strconv.Itoa(n))
		} else {
			doc[k] = raw
		}
	}

	if err := check(v.list, doc); err != nil {
		var ve *apperr.ValidationError
		if _, single := filter.(model.Single); single && errors.As(err, &ve) {
			collapseIndex(ve, "userId")
		}
		return out, err
	}

	out.Filter = filter
	out.ViewerTimezone = q.Get("viewerTimezone")
	if s, ok := doc["from"].(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return out, apperr.Validation("from", `"from" must be an RFC 3339 date-time`)
		}
		out.From = &t
	}
	if s, ok := doc["to"].(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return out, apperr.Validation("to", `"to" must be an RFC 3339 date-time`)
		}
		out.To = &t
	}
	if n, ok := doc["limit"].(json.Number); ok {
		l, _ := n.Int64()
		out.Limit = int(l)
	}
	if n, ok := doc["page"].(json.Number); ok {
		p, _ := n.Int64()
		out.Page = int(p)
	}
	return out, nil
}

// EventID checks that a path id has the identifier shape.
func EventID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return apperr.Validation("id", "Invalid event id")
	}
	return nil
}

// NormalizeFilter turns repeated params, a JSON array string, a
// comma-separated string or a single id into a ParticipantFilter.
func NormalizeFilter(raw []string) (model.ParticipantFilter, bool) {
	switch len(raw) {
	case 0:
		return nil, false
	case 1:
	default:
		ids := make([]string, 0, len(raw))
		for _, r := range raw {
			ids = append(ids, strings.TrimSpace(r))
		}
		return model.Many(ids), true
	}

	s := raw[0]
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err == nil && len(arr) > 0 {
			return model.Many(arr), true
		}
	}
	if strings.Contains(s, ",") {
		var ids []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				ids = append(ids, p)
			}
		}
		if len(ids) > 0 {
			return model.Many(ids), true
		}
	}
	return model.Single(strings.TrimSpace(s)), true
}

func decode(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Validation("", "request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil || dec.More() {
		return nil, apperr.Validation("", "request body must be valid JSON")
	}
	return doc, nil
}

func check(s *jsonschema.Schema, doc any) error {
	err := s.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &apperr.ValidationError{}
	collect(s, doc, ve, &out.Details)
	if len(out.Details) == 0 {
		out.Details = append(out.Details, apperr.Detail{Message: ve.Message, Path: []any{}})
	}
	return out
}

// collect flattens the cause tree into one detail per leaf.
func collect(root *jsonschema.Schema, doc any, ve *jsonschema.ValidationError, out *[]apperr.Detail) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collect(root, doc, c, out)
		}
		return
	}

	path := pointerPath(ve.InstanceLocation)
	obj, _ := doc.(map[string]any)

	switch keyword(ve.KeywordLocation) {
	case "required":
		if len(path) == 0 {
			for _, name := range root.Required {
				if _, ok := obj[name]; !ok {
					*out = append(*out, apperr.Detail{Message: strconv.Quote(name) + " is required", Path: []any{name}})
				}
			}
			return
		}
	case "additionalProperties":
		if len(path) == 0 {
			var extra []string
			for name := range obj {
				if _, ok := root.Properties[name]; !ok {
					extra = append(extra, name)
				}
			}
			sort.Strings(extra)
			for _, name := range extra {
				*out = append(*out, apperr.Detail{Message: strconv.Quote(name) + " is not allowed", Path: []any{name}})
			}
			return
		}
	case "minProperties":
		if len(path) == 0 {
			*out = append(*out, apperr.Detail{Message: `"value" must have at least 1 key`, Path: []any{}})
			return
		}
	}
	*out = append(*out, apperr.Detail{Message: label(path) + " " + ve.Message, Path: path})
}

func keyword(loc string) string {
	if i := strings.LastIndex(loc, "/"); i >= 0 {
		return loc[i+1:]
	}
	return loc
}

// pointerPath splits a JSON pointer; array indexes become ints.
func pointerPath(ptr string) []any {
	path := []any{}
	if ptr == "" || ptr == "/" {
		return path
	}
	for _, seg := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if n, err := strconv.Atoi(seg); err == nil {
			path = append(path, n)
			continue
		}
		path = append(path, seg)
	}
	return path
}

func label(path []any) string {
	if len(path) == 0 {
		return `"value"`
	}
	var b strings.Builder
	for i, seg := range path {
		switch s := seg.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", s)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, s)
		}
	}
	return strconv.Quote(b.String())
}

// collapseIndex drops the array index a single-value filter picked up during
// normalization, so the path points at the query parameter itself.
func collapseIndex(ve *apperr.ValidationError, field string) {
	for i, d := range ve.Details {
		if len(d.Path) == 2 && d.Path[0] == field {
			ve.Details[i].Path = []any{field}
			ve.Details[i].Message = strings.Replace(d.Message, strconv.Quote(field+"[0]"), strconv.Quote(field), 1)
		}
	}
}
