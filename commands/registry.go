/*
registry.go - Command name to handler registry

PURPOSE:
  Replaces one long if/else chain with a table of independently testable
  handlers. Names are matched exactly (lowercased by the classifier); unknown
  names are ignored without a reply.

PERMISSIONS:
  OwnerOnly    sender must be in the owner list
  PrivateOnly  must be issued in a private chat
  Handlers may also return generic.ErrPermissionDenied for rules that depend
  on arguments or chat kind (e.g. !rekap in private chats).

SEE ALSO:
  - handlers.go: the built-in commands
  - bot/dispatcher.go: caller
*/
package commands

import (
	"context"
	"errors"
	"sort"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/metrics"
)

// Invocation is one command call with the config in force when it arrived.
type Invocation struct {
	Event  booking.Event
	Name   string
	Args   []string
	Config *config.Snapshot
}

// Private reports whether the command came from a one-to-one chat.
func (inv Invocation) Private() bool { return !inv.Event.IsGroup }

// Sender is the author id; private chats may omit it, then the chat id is the author.
func (inv Invocation) Sender() string {
	if inv.Event.SenderID != "" {
		return inv.Event.SenderID
	}
	return string(inv.Event.ChatID)
}

// IsOwner checks the sender against the snapshot's owner list.
func (inv Invocation) IsOwner() bool {
	return inv.Config != nil && inv.Config.IsOwner(inv.Sender())
}

// Handler returns the reply for the origin chat; empty means no reply.
type Handler func(ctx context.Context, inv Invocation) (string, error)

// Spec registers one command.
type Spec struct {
	Name        string
	Usage       string
	OwnerOnly   bool
	PrivateOnly bool
	Handle      Handler
}

type Registry struct {
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds or replaces a command.
func (r *Registry) Register(s Spec) {
	r.specs[s.Name] = s
}

func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names lists registered commands, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.specs))
	for n := range r.specs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

const (
	ownerOnlyNotice   = "Perintah ini hanya untuk owner."
	privateOnlyNotice = "Perintah ini hanya bisa dipakai lewat chat pribadi."
)

// Execute runs a command. ok is false for unknown names. Client errors
// (permissions, bad dates, unknown apartments) become reply text; only
// infrastructure faults are returned as err.
func (r *Registry) Execute(ctx context.Context, inv Invocation) (reply string, ok bool, err error) {
	spec, found := r.specs[inv.Name]
	if !found {
		return "", false, nil
	}

	if spec.OwnerOnly && !inv.IsOwner() {
		metrics.CommandsExecuted.WithLabelValues(spec.Name, "denied").Inc()
		return ownerOnlyNotice, true, nil
	}
	if spec.PrivateOnly && !inv.Private() {
		metrics.CommandsExecuted.WithLabelValues(spec.Name, "denied").Inc()
		return privateOnlyNotice, true, nil
	}

	reply, err = spec.Handle(ctx, inv)
	switch {
	case err == nil:
		metrics.CommandsExecuted.WithLabelValues(spec.Name, "ok").Inc()
		return reply, true, nil
	case errors.Is(err, generic.ErrPermissionDenied):
		metrics.CommandsExecuted.WithLabelValues(spec.Name, "denied").Inc()
		return ownerOnlyNotice, true, nil
	case generic.IsClientError(err) || generic.IsNotFound(err) || errors.Is(err, generic.ErrBackfillRunning):
		metrics.CommandsExecuted.WithLabelValues(spec.Name, "rejected").Inc()
		return userMessage(err, spec), true, nil
	default:
		metrics.CommandsExecuted.WithLabelValues(spec.Name, "error").Inc()
		return "Terjadi kesalahan, coba lagi nanti.", true, err
	}
}

func userMessage(err error, spec Spec) string {
	var msg string
	switch {
	case errors.Is(err, generic.ErrInvalidDate):
		msg = "Tanggal tidak valid. Gunakan DDMMYYYY (contoh: 01082025)."
	case errors.Is(err, generic.ErrInvalidWindow):
		msg = "Rentang waktu tidak valid."
	case errors.Is(err, generic.ErrUnknownApartment):
		msg = "Apartemen tidak dikenali."
	case errors.Is(err, generic.ErrBackfillRunning):
		return "Rekap ulang masih berjalan, tunggu sampai selesai."
	case generic.IsNotFound(err):
		msg = "Data tidak ditemukan."
	default:
		msg = err.Error()
	}
	if spec.Usage != "" {
		msg += "\nFormat: " + spec.Usage
	}
	return msg
}
