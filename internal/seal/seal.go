// Package seal implements the per-run hash chain: run_start/step/run_finish
// entries linking each evidence payload's digest to the previous entry's
// digest, and the two-phase verification (payload integrity, then
// linkage) that detects any after-the-fact modification.
//
// The chain digest formula is grounded on the prev+"\n"+payload idiom
// used by hash-chain implementations across the retrieval pack (e.g. the
// ledger package's hashStep: sha256(prev + "\n" + canonicalBytes)); this
// package extends the concatenation with the entry type and timestamp so
// a replayed payload at the wrong chain position or wrong time still
// fails linkage.
package seal

import (
	"context"
	"fmt"

	"reach/blackbox/internal/canon"
	blackbox "reach/blackbox/internal/errors"
	"reach/blackbox/internal/store"
)

// Mode selects whether a run's evidence is chained.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeChain Mode = "chain"
)

// EntryType names the three evidence shapes that ever appear in a chain.
type EntryType string

const (
	EntryRunStart  EntryType = "run_start"
	EntryStep      EntryType = "step"
	EntryRunFinish EntryType = "run_finish"
)

// Entry is one link in a run's chain, spec.md §3.
type Entry struct {
	Index         int       `json:"index"`
	Type          EntryType `json:"type"`
	TS            string    `json:"ts"`
	PayloadRef    string    `json:"payload_ref"`
	PayloadDigest string    `json:"payload_digest"`
	Prev          string    `json:"prev"`
	Digest        string    `json:"digest"`
}

// Chain is the full per-run chain document.
type Chain struct {
	Version string  `json:"version"`
	RunID   string  `json:"run_id"`
	Algo    string  `json:"algo"`
	Entries []Entry `json:"entries"`
	Head    string  `json:"head"`
}

// NewChain returns an empty chain for runID.
func NewChain(runID string) *Chain {
	return &Chain{Version: "0.1", RunID: runID, Algo: "sha256", Entries: nil, Head: ""}
}

// entryDigest computes sha256(prev‖"\n"‖payloadDigest‖"\n"‖type‖"\n"‖ts),
// labeled "sha256:"+hex, per spec.md §3/§4.6. prev is the empty string at
// index 0.
func entryDigest(prev, payloadDigest string, typ EntryType, ts string) string {
	buf := make([]byte, 0, len(prev)+len(payloadDigest)+len(typ)+len(ts)+3)
	buf = append(buf, prev...)
	buf = append(buf, '\n')
	buf = append(buf, payloadDigest...)
	buf = append(buf, '\n')
	buf = append(buf, typ...)
	buf = append(buf, '\n')
	buf = append(buf, ts...)
	return canon.Digest(buf)
}

// Append adds an entry of type typ with payloadRef/payloadDigest/ts,
// linking it to the current head, and returns the new entry.
func (c *Chain) Append(typ EntryType, payloadRef, payloadDigest, ts string) Entry {
	idx := len(c.Entries)
	prev := c.Head
	entry := Entry{
		Index:         idx,
		Type:          typ,
		TS:            ts,
		PayloadRef:    payloadRef,
		PayloadDigest: payloadDigest,
		Prev:          prev,
		Digest:        entryDigest(prev, payloadDigest, typ, ts),
	}
	c.Entries = append(c.Entries, entry)
	c.Head = entry.Digest
	return entry
}

// VerifyResult is the outcome of a chain verification pass.
type VerifyResult struct {
	OK      bool
	Message string
}

func ok() VerifyResult { return VerifyResult{OK: true, Message: "ok"} }

func fail(format string, args ...any) VerifyResult {
	return VerifyResult{OK: false, Message: fmt.Sprintf(format, args...)}
}

// Verify performs the two-phase check (payload integrity, then linkage)
// against c, reading each entry's payload from st under runPrefix. It
// never mutates state and is safe to call concurrently with other
// readers. Failures are reported earliest-index-first.
func Verify(ctx context.Context, st *store.Store, runPrefix string, c *Chain) (VerifyResult, error) {
	if c == nil || len(c.Entries) == 0 {
		return ok(), nil
	}

	for i, e := range c.Entries {
		var payload any
		key := runPrefix + "/" + e.PayloadRef
		if err := st.GetJSON(ctx, key, &payload); err != nil {
			if blackbox.CodeOf(err) == blackbox.CodeNotFound {
				return fail("Payload missing at %d: %s", i, e.PayloadRef), nil
			}
			return VerifyResult{}, err
		}
		digest, err := canon.DigestJSON(payload)
		if err != nil {
			return VerifyResult{}, err
		}
		if digest != e.PayloadDigest {
			return fail("Payload digest mismatch at %d: %s", i, e.PayloadRef), nil
		}
	}

	for i, e := range c.Entries {
		if e.Index != i {
			return fail("Index mismatch at %d: entry carries index %d", i, e.Index), nil
		}
		wantPrev := ""
		if i > 0 {
			wantPrev = c.Entries[i-1].Digest
		}
		if e.Prev != wantPrev {
			return fail("Prev mismatch at %d", i), nil
		}
		wantDigest := entryDigest(e.Prev, e.PayloadDigest, e.Type, e.TS)
		if e.Digest != wantDigest {
			return fail("Digest mismatch at %d", i), nil
		}
	}

	last := c.Entries[len(c.Entries)-1]
	if c.Head != last.Digest {
		return fail("Head mismatch: chain head %s, last entry digest %s", c.Head, last.Digest), nil
	}

	return ok(), nil
}

// VerifyDisabled is the trivial verification result for Mode=none.
func VerifyDisabled() VerifyResult {
	return VerifyResult{OK: true, Message: "seal disabled"}
}
