// Package id holds the identifiers of Tally records.
//
// An identifier is a TypeID such as "inv_01h2xcejqtf2nbrexx3vqjhp41": a short
// record-kind prefix followed by a UUIDv7 suffix, so values sort by creation
// time and can be told apart at a glance in logs and URLs.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the record kind carried by an ID.
type Prefix string

const (
	PrefixBusiness     Prefix = "biz"
	PrefixClient       Prefix = "cli"
	PrefixInvoice      Prefix = "inv" // invoices and recurring templates
	PrefixLineItem     Prefix = "li"
	PrefixPayment      Prefix = "pay"
	PrefixTaxType      Prefix = "tax"
	PrefixNotification Prefix = "ntf"
)

// ID identifies one record. The zero value is Nil and encodes as "".
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the unset ID.
var Nil ID

// The aliases document which record an ID field points at. They do not
// restrict assignment; prefix checks happen when parsing.
type (
	BusinessID     = ID
	ClientID       = ID
	InvoiceID      = ID
	LineItemID     = ID
	PaymentID      = ID
	TaxTypeID      = ID
	NotificationID = ID
)

// New returns a fresh ID. It panics on a malformed prefix, which is a
// programming error since all prefixes are constants.
func New(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		panic(fmt.Sprintf("id: bad prefix %q: %v", p, err))
	}
	return ID{tid: tid, set: true}
}

func NewBusinessID() ID     { return New(PrefixBusiness) }
func NewClientID() ID       { return New(PrefixClient) }
func NewInvoiceID() ID      { return New(PrefixInvoice) }
func NewLineItemID() ID     { return New(PrefixLineItem) }
func NewPaymentID() ID      { return New(PrefixPayment) }
func NewTaxTypeID() ID      { return New(PrefixTaxType) }
func NewNotificationID() ID { return New(PrefixNotification) }

// Parse accepts an ID of any kind.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: empty")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseWithPrefix parses s and rejects IDs of another kind.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := v.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %s id, want %s", s, got, want)
	}
	return v, nil
}

func ParseBusinessID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBusiness) }
func ParseClientID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixClient) }
func ParseInvoiceID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixInvoice) }
func ParseLineItemID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLineItem) }
func ParsePaymentID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixPayment) }
func ParseTaxTypeID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixTaxType) }

func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the record kind, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.set }

// MarshalText encodes Nil as an empty string so optional references stay
// blank in JSON.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText decodes "" to Nil.
func (i *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*i = Nil
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
