package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"
)

type fakeChannel struct {
	resp []byte
	err  error
}

func (f *fakeChannel) Connect(ctx context.Context) error    { return nil }
func (f *fakeChannel) Disconnect() error                    { return nil }
func (f *fakeChannel) Transceive(ctx context.Context, command []byte) ([]byte, error) {
	return f.resp, f.err
}

func TestExchangeSuccess(t *testing.T) {
	resp, _ := hex.DecodeString("6F2A9000")
	ch := &fakeChannel{resp: resp}
	data, sw, entry := Exchange(context.Background(), ch, []byte{0x00, 0xA4}, "SELECT", time.Second)
	if !sw.OK() {
		t.Fatalf("expected OK, got %s", sw.Hex())
	}
	if hex.EncodeToString(data) != "6f2a" {
		t.Fatalf("got data %x", data)
	}
	if entry.SW != "9000" {
		t.Fatalf("got SW %s", entry.SW)
	}
}

func TestExchangeTransportFailure(t *testing.T) {
	ch := &fakeChannel{err: errors.New("reader unplugged")}
	_, sw, entry := Exchange(context.Background(), ch, []byte{0x00, 0xA4}, "SELECT", time.Second)
	if sw.Hex() != "FFFF" {
		t.Fatalf("got SW %s, want FFFF", sw.Hex())
	}
	if entry.SW != "FFFF" {
		t.Fatalf("got entry SW %s", entry.SW)
	}
	if entry.Description != "SELECT FAILED" {
		t.Fatalf("got description %q", entry.Description)
	}
}
