package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/tally/id"
)

func TestKinds(t *testing.T) {
	kinds := []struct {
		prefix string
		newFn  func() id.ID
		parse  func(string) (id.ID, error)
	}{
		{"biz_", id.NewBusinessID, id.ParseBusinessID},
		{"cli_", id.NewClientID, id.ParseClientID},
		{"inv_", id.NewInvoiceID, id.ParseInvoiceID},
		{"li_", id.NewLineItemID, id.ParseLineItemID},
		{"pay_", id.NewPaymentID, id.ParsePaymentID},
		{"tax_", id.NewTaxTypeID, id.ParseTaxTypeID},
	}

	for _, k := range kinds {
		t.Run(k.prefix, func(t *testing.T) {
			v := k.newFn()
			if !strings.HasPrefix(v.String(), k.prefix) {
				t.Fatalf("%q lacks prefix %q", v, k.prefix)
			}
			back, err := k.parse(v.String())
			if err != nil {
				t.Fatalf("parse %q: %v", v, err)
			}
			if back.String() != v.String() {
				t.Fatalf("parsed %q, want %q", back, v)
			}
		})
	}
}

func TestNotificationIDPrefix(t *testing.T) {
	if p := id.NewNotificationID().Prefix(); p != id.PrefixNotification {
		t.Fatalf("prefix = %q", p)
	}
}

func TestParseRejectsOtherKinds(t *testing.T) {
	if _, err := id.ParseBusinessID(id.NewClientID().String()); err == nil {
		t.Fatal("client id accepted as business id")
	}
	if _, err := id.ParseInvoiceID(id.NewLineItemID().String()); err == nil {
		t.Fatal("line item id accepted as invoice id")
	}
	if _, err := id.Parse(""); err == nil {
		t.Fatal("empty string accepted")
	}
	if _, err := id.Parse("inv_not-a-suffix"); err == nil {
		t.Fatal("malformed suffix accepted")
	}
}

func TestNil(t *testing.T) {
	var v id.ID
	if !v.IsNil() || v.String() != "" || v.Prefix() != "" {
		t.Fatalf("zero value = %q, want Nil", v)
	}
	if id.NewInvoiceID().IsNil() {
		t.Fatal("fresh id is nil")
	}
	if id.NewInvoiceID().String() == id.NewInvoiceID().String() {
		t.Fatal("two fresh ids collide")
	}
}

func TestJSON(t *testing.T) {
	type ref struct {
		Invoice id.InvoiceID `json:"invoice"`
		Client  id.ClientID  `json:"client"`
	}
	in := ref{Invoice: id.NewInvoiceID()}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"client":""`) {
		t.Fatalf("nil id encoded as %s", raw)
	}

	var out ref
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Invoice.String() != in.Invoice.String() || !out.Client.IsNil() {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}
}
