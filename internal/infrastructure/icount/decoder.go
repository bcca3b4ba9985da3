package icount

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/shopspring/decimal"
)

// ShapeError reports a remote record that matches no known layout.
type ShapeError struct {
	DocType accounting.DocType
	Field   string
	Detail  string
}

func (e *ShapeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("icount: %s record: %s", e.DocType, e.Detail)
	}
	return fmt.Sprintf("icount: %s record: field %q %s", e.DocType, e.Field, e.Detail)
}

func (e *ShapeError) Unwrap() error { return accounting.ErrUnrecognizedShape }

// ---------------------------------------------------------------------------
// Layouts
// ---------------------------------------------------------------------------

// layout lists, per canonical field, the keys the remote has been seen to
// use for it. The first present alias wins. Nothing outside this table is
// ever consulted.
type layout struct {
	docType  accounting.DocType
	aliases  map[string][]string
	required []string
}

const (
	fieldDocNumber  = "doc_number"
	fieldClientID   = "client_id"
	fieldClientName = "client_name"
	fieldSubtotal   = "subtotal"
	fieldVAT        = "vat"
	fieldTotal      = "total"
	fieldCurrency   = "currency"
	fieldIssueDate  = "issue_date"
	fieldCancelled  = "cancelled"
	fieldItems      = "items"

	fieldEmail = "email"
	fieldPhone = "phone"
	fieldVATID = "vat_id"

	defaultCurrency = "ILS"
)

var commonDocumentAliases = map[string][]string{
	fieldDocNumber:  {"docnum", "doc_number"},
	fieldClientID:   {"client_id", "clientid"},
	fieldClientName: {"client_name", "clientname"},
	fieldCurrency:   {"currency_code", "currency"},
	fieldIssueDate:  {"dateissued", "doc_date", "date"},
	fieldCancelled:  {"is_cancelled", "cancelled"},
	fieldItems:      {"items"},
}

func documentLayout(docType accounting.DocType, overrides map[string][]string) layout {
	aliases := make(map[string][]string, len(commonDocumentAliases)+len(overrides))
	for k, v := range commonDocumentAliases {
		aliases[k] = v
	}
	for k, v := range overrides {
		aliases[k] = v
	}
	return layout{
		docType:  docType,
		aliases:  aliases,
		required: []string{fieldDocNumber, fieldTotal, fieldIssueDate},
	}
}

var documentLayouts = map[accounting.DocType]layout{
	accounting.DocTypeInvoice: documentLayout(accounting.DocTypeInvoice, map[string][]string{
		fieldSubtotal: {"totalsum", "total_without_vat"},
		fieldVAT:      {"totalvat", "vat"},
		fieldTotal:    {"totalwithvat", "total"},
	}),
	accounting.DocTypeInvRec: documentLayout(accounting.DocTypeInvRec, map[string][]string{
		fieldSubtotal: {"totalsum", "total_without_vat"},
		fieldVAT:      {"totalvat", "vat"},
		fieldTotal:    {"totalwithvat", "total_paid", "total"},
	}),
	// Receipts carry no VAT breakdown
	accounting.DocTypeReceipt: documentLayout(accounting.DocTypeReceipt, map[string][]string{
		fieldTotal: {"total_paid", "totalpaid", "total"},
	}),
	accounting.DocTypeRefund: documentLayout(accounting.DocTypeRefund, map[string][]string{
		fieldSubtotal: {"totalsum"},
		fieldVAT:      {"totalvat"},
		fieldTotal:    {"totalwithvat", "total_credit"},
	}),
	accounting.DocTypeOrder: documentLayout(accounting.DocTypeOrder, map[string][]string{
		fieldDocNumber: {"docnum", "order_number"},
		fieldVAT:       {"totalvat", "vat"},
		fieldTotal:     {"totalwithvat", "total"},
	}),
}

var clientLayout = layout{
	docType: accounting.DocTypeClient,
	aliases: map[string][]string{
		fieldClientID:   {"client_id", "id"},
		fieldClientName: {"client_name", "name"},
		fieldEmail:      {"email"},
		fieldPhone:      {"phone", "mobile"},
		fieldVATID:      {"vat_id", "bus_no"},
	},
	required: []string{fieldClientID, fieldClientName},
}

var itemAliases = map[string][]string{
	"description": {"description", "name"},
	"quantity":    {"quantity", "qty"},
	"unit_price":  {"unitprice", "unit_price", "price"},
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02 15:04:05"}

// ---------------------------------------------------------------------------
// Record access
// ---------------------------------------------------------------------------

type record struct {
	layout layout
	fields map[string]json.RawMessage
}

func newRecord(l layout, raw json.RawMessage) (*record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, &ShapeError{DocType: l.docType, Detail: "is not a JSON object"}
	}
	r := &record{layout: l, fields: fields}
	for _, name := range l.required {
		if _, ok := r.lookup(name); !ok {
			return nil, &ShapeError{DocType: l.docType, Field: name, Detail: fmt.Sprintf("missing under aliases %v", l.aliases[name])}
		}
	}
	return r, nil
}

// lookup returns the first present, non-null alias of a canonical field.
func (r *record) lookup(name string) (json.RawMessage, bool) {
	for _, alias := range r.layout.aliases[name] {
		raw, ok := r.fields[alias]
		if ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return raw, true
		}
	}
	return nil, false
}

func (r *record) shapeErr(field, detail string) error {
	return &ShapeError{DocType: r.layout.docType, Field: field, Detail: detail}
}

func (r *record) str(name string) (string, error) {
	raw, ok := r.lookup(name)
	if !ok {
		return "", nil
	}
	s, err := scalarString(raw)
	if err != nil {
		return "", r.shapeErr(name, err.Error())
	}
	return s, nil
}

func (r *record) money(name string) (decimal.Decimal, error) {
	raw, ok := r.lookup(name)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := parseDecimal(raw)
	if err != nil {
		return decimal.Zero, r.shapeErr(name, err.Error())
	}
	return d, nil
}

func (r *record) date(name string) (time.Time, error) {
	s, err := r.str(name)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	for _, l := range dateLayouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, r.shapeErr(name, fmt.Sprintf("has unknown date format %q", s))
}

func (r *record) flag(name string) (bool, error) {
	raw, ok := r.lookup(name)
	if !ok {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	s, err := scalarString(raw)
	if err != nil {
		return false, r.shapeErr(name, err.Error())
	}
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no", "":
		return false, nil
	}
	return false, r.shapeErr(name, fmt.Sprintf("is not a boolean: %q", s))
}

// ---------------------------------------------------------------------------
// Decoders
// ---------------------------------------------------------------------------

// DecodeDocument decodes one remote document of the given type.
func DecodeDocument(docType accounting.DocType, raw json.RawMessage) (*accounting.ExternalDocument, error) {
	l, ok := documentLayouts[docType]
	if !ok {
		return nil, &ShapeError{DocType: docType, Detail: "has no known layout"}
	}
	r, err := newRecord(l, raw)
	if err != nil {
		return nil, err
	}

	doc := &accounting.ExternalDocument{DocType: docType}
	if doc.DocNumber, err = r.str(fieldDocNumber); err != nil {
		return nil, err
	}
	if doc.DocNumber == "" {
		return nil, r.shapeErr(fieldDocNumber, "is empty")
	}
	if doc.ClientID, err = r.str(fieldClientID); err != nil {
		return nil, err
	}
	if doc.ClientName, err = r.str(fieldClientName); err != nil {
		return nil, err
	}
	if doc.Total, err = r.money(fieldTotal); err != nil {
		return nil, err
	}
	if doc.VAT, err = r.money(fieldVAT); err != nil {
		return nil, err
	}
	if doc.Subtotal, err = r.money(fieldSubtotal); err != nil {
		return nil, err
	}
	if _, ok := r.lookup(fieldSubtotal); !ok {
		doc.Subtotal = doc.Total.Sub(doc.VAT)
	}
	if doc.Currency, err = r.str(fieldCurrency); err != nil {
		return nil, err
	}
	if doc.Currency == "" {
		doc.Currency = defaultCurrency
	}
	doc.Currency = strings.ToUpper(doc.Currency)
	if doc.IssueDate, err = r.date(fieldIssueDate); err != nil {
		return nil, err
	}
	if doc.IssueDate.IsZero() {
		return nil, r.shapeErr(fieldIssueDate, "is empty")
	}
	if doc.Cancelled, err = r.flag(fieldCancelled); err != nil {
		return nil, err
	}
	if doc.Items, err = r.items(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *record) items() ([]accounting.ExternalLineItem, error) {
	raw, ok := r.lookup(fieldItems)
	if !ok {
		return nil, nil
	}
	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, r.shapeErr(fieldItems, "is not an array")
	}

	itemLayout := layout{docType: r.layout.docType, aliases: itemAliases, required: []string{"description"}}
	items := make([]accounting.ExternalLineItem, 0, len(rawItems))
	for i, rawItem := range rawItems {
		ir, err := newRecord(itemLayout, rawItem)
		if err != nil {
			return nil, r.shapeErr(fieldItems, fmt.Sprintf("line %d: %v", i+1, err))
		}
		var item accounting.ExternalLineItem
		if item.Description, err = ir.str("description"); err != nil {
			return nil, err
		}
		if item.Quantity, err = ir.money("quantity"); err != nil {
			return nil, err
		}
		if _, ok := ir.lookup("quantity"); !ok {
			item.Quantity = decimal.NewFromInt(1)
		}
		if item.UnitPrice, err = ir.money("unit_price"); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// DecodeClient decodes one remote client record.
func DecodeClient(raw json.RawMessage) (*accounting.ExternalClient, error) {
	r, err := newRecord(clientLayout, raw)
	if err != nil {
		return nil, err
	}
	c := &accounting.ExternalClient{}
	if c.ClientID, err = r.str(fieldClientID); err != nil {
		return nil, err
	}
	if c.Name, err = r.str(fieldClientName); err != nil {
		return nil, err
	}
	if c.Email, err = r.str(fieldEmail); err != nil {
		return nil, err
	}
	if c.Phone, err = r.str(fieldPhone); err != nil {
		return nil, err
	}
	if c.VATID, err = r.str(fieldVATID); err != nil {
		return nil, err
	}
	return c, nil
}

// recordKey returns a best-effort natural key for a record that failed to
// decode, so the failure can still be logged against something.
func recordKey(l layout, keyField string, raw json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	r := &record{layout: l, fields: fields}
	s, err := r.str(keyField)
	if err != nil || s == "" {
		return ""
	}
	return accounting.NaturalKey{Number: s, Type: l.docType}.String()
}

// listItems accepts either a JSON array or an object keyed by id, which
// the client listing returns. Object members come back in key order.
func listItems(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(byID))
		for k := range byID {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]json.RawMessage, 0, len(keys))
		for _, k := range keys {
			items = append(items, byID[k])
		}
		return items, nil
	}
	return nil, fmt.Errorf("expected array or object, got %q", string(trimmed[:1]))
}

// ---------------------------------------------------------------------------
// Scalars
// ---------------------------------------------------------------------------

func scalarString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("is not a string or number: %s", string(raw))
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	s, err := scalarString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("is not a number: %q", s)
	}
	return d, nil
}

func parseInt(raw json.RawMessage) (int, error) {
	s, err := scalarString(raw)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}
