// Package schema defines the activity event structures shared by the store,
// its network surfaces and the SDK.
package schema

// Kind is the category of an activity event.
type Kind string

const (
	KindBridge       Kind = "bridge"
	KindSwap         Kind = "swap"
	KindDeploy       Kind = "deploy"
	KindContractCall Kind = "contractCall"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBridge, KindSwap, KindDeploy, KindContractCall:
		return true
	}
	return false
}

// Status is the lifecycle position of an activity event.
// Any status may follow any other; there is no transition table.
type Status string

const (
	StatusStarted   Status = "started"
	StatusApproved  Status = "approved"
	StatusSubmitted Status = "submitted"
	StatusAttested  Status = "attested"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusStarted, StatusApproved, StatusSubmitted, StatusAttested, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ParseStatus converts a wire value to a Status.
func ParseStatus(v string) (Status, bool) {
	s := Status(v)
	return s, s.Valid()
}

// TokenSymbol is a supported stablecoin symbol.
type TokenSymbol string

const (
	SymbolUSDC TokenSymbol = "USDC"
	SymbolEURC TokenSymbol = "EURC"
)

func (s TokenSymbol) Valid() bool { return s == SymbolUSDC || s == SymbolEURC }

// AIMode is how an AI assessment was applied to the event.
type AIMode string

const (
	AIModeSuggest AIMode = "suggest"
	AIModeApprove AIMode = "approve"
)

func (m AIMode) Valid() bool { return m == AIModeSuggest || m == AIModeApprove }

// AIVerdict is the outcome of an AI assessment.
type AIVerdict string

const (
	VerdictApprove AIVerdict = "approve"
	VerdictDeny    AIVerdict = "deny"
	VerdictSuggest AIVerdict = "suggest"
)

func (v AIVerdict) Valid() bool {
	return v == VerdictApprove || v == VerdictDeny || v == VerdictSuggest
}

// Chains holds the source and destination chain identifiers.
type Chains struct {
	SourceChainID *uint32 `json:"sourceChainId,omitempty" validate:"omitempty,min=1"`
	DestChainID   *uint32 `json:"destChainId,omitempty" validate:"omitempty,min=1"`
}

// Token is an amount of a supported token. Amount is a base-unit integer string.
type Token struct {
	Symbol TokenSymbol `json:"symbol" validate:"required,oneof=USDC EURC"`
	Amount string      `json:"amount" validate:"required,strict=digits"`
}

// Tx holds transaction hashes on either side of a transfer.
type Tx struct {
	SourceTxHash *string `json:"sourceTxHash,omitempty" validate:"omitempty,strict=txhash"`
	DestTxHash   *string `json:"destTxHash,omitempty" validate:"omitempty,strict=txhash"`
}

// TxUpdate is a partial Tx: only non-nil fields overwrite the stored value.
type TxUpdate = Tx

// Refs holds block explorer links.
type Refs struct {
	ExplorerSourceURL *string `json:"explorerSourceUrl,omitempty" validate:"omitempty,strict=url"`
	ExplorerDestURL   *string `json:"explorerDestUrl,omitempty" validate:"omitempty,strict=url"`
}

// AI holds AI-assessment metadata.
type AI struct {
	Mode        AIMode     `json:"mode" validate:"required,oneof=suggest approve"`
	ReceiptRoot *string    `json:"receiptRoot,omitempty" validate:"omitempty,min=1"`
	Model       *string    `json:"model,omitempty" validate:"omitempty,min=1"`
	Verdict     *AIVerdict `json:"verdict,omitempty" validate:"omitempty,oneof=approve deny suggest"`
	Reason      *string    `json:"reason,omitempty" validate:"omitempty,min=1"`
}

// SignalsMeta is optional detail attached to a signals bundle.
type SignalsMeta struct {
	DeployAddress *string  `json:"deployAddress,omitempty" validate:"omitempty,strict=evmaddr"`
	Errors        []string `json:"errors,omitempty" validate:"omitempty,dive,min=1"`
	Decimals      *uint32  `json:"decimals,omitempty"`
	Slippage      *string  `json:"slippage,omitempty" validate:"omitempty,min=1"`
}

// Signals is a list of free-form signal tags plus optional meta.
type Signals struct {
	Items []string     `json:"items" validate:"required,dive,min=1"`
	Meta  *SignalsMeta `json:"meta,omitempty"`
}

// EventRecord is a single entry in an actor's activity log.
// CreatedAt is opaque to the log: it is neither parsed nor used for ordering.
type EventRecord struct {
	ID        string   `json:"id" validate:"required,strict=uuid"`
	CreatedAt string   `json:"createdAt" validate:"required,strict=datetime"`
	Actor     string   `json:"actor" validate:"required,strict=evmaddr"`
	App       string   `json:"app,omitempty"`
	IntentID  string   `json:"intentId,omitempty" validate:"omitempty,strict=uuid"`
	Kind      Kind     `json:"kind" validate:"required,oneof=bridge swap deploy contractCall"`
	Status    Status   `json:"status" validate:"required,oneof=started approved submitted attested completed failed"`
	Chains    *Chains  `json:"chains,omitempty"`
	Token     *Token   `json:"token,omitempty"`
	Tx        *Tx      `json:"tx,omitempty"`
	Refs      *Refs    `json:"refs,omitempty"`
	AI        *AI      `json:"ai,omitempty"`
	Signals   *Signals `json:"signals,omitempty"`
}

// Clone returns a deep copy of r.
func (r EventRecord) Clone() EventRecord {
	out := r
	if r.Chains != nil {
		c := *r.Chains
		c.SourceChainID = cloneUint32(c.SourceChainID)
		c.DestChainID = cloneUint32(c.DestChainID)
		out.Chains = &c
	}
	if r.Token != nil {
		t := *r.Token
		out.Token = &t
	}
	if r.Tx != nil {
		tx := r.Tx.Clone()
		out.Tx = &tx
	}
	if r.Refs != nil {
		refs := Refs{
			ExplorerSourceURL: cloneString(r.Refs.ExplorerSourceURL),
			ExplorerDestURL:   cloneString(r.Refs.ExplorerDestURL),
		}
		out.Refs = &refs
	}
	if r.AI != nil {
		ai := AI{
			Mode:        r.AI.Mode,
			ReceiptRoot: cloneString(r.AI.ReceiptRoot),
			Model:       cloneString(r.AI.Model),
			Reason:      cloneString(r.AI.Reason),
		}
		if r.AI.Verdict != nil {
			v := *r.AI.Verdict
			ai.Verdict = &v
		}
		out.AI = &ai
	}
	if r.Signals != nil {
		s := Signals{Items: append([]string(nil), r.Signals.Items...)}
		if r.Signals.Meta != nil {
			m := SignalsMeta{
				DeployAddress: cloneString(r.Signals.Meta.DeployAddress),
				Errors:        append([]string(nil), r.Signals.Meta.Errors...),
				Decimals:      cloneUint32(r.Signals.Meta.Decimals),
				Slippage:      cloneString(r.Signals.Meta.Slippage),
			}
			s.Meta = &m
		}
		out.Signals = &s
	}
	return out
}

// Clone returns a deep copy of t.
func (t Tx) Clone() Tx {
	return Tx{SourceTxHash: cloneString(t.SourceTxHash), DestTxHash: cloneString(t.DestTxHash)}
}

// Merge overwrites each hash in t whose counterpart in u is set.
// Fields absent from u leave t untouched.
func (t *Tx) Merge(u TxUpdate) {
	if u.SourceTxHash != nil {
		t.SourceTxHash = cloneString(u.SourceTxHash)
	}
	if u.DestTxHash != nil {
		t.DestTxHash = cloneString(u.DestTxHash)
	}
}

// CloneRecords deep-copies a slice of records.
func CloneRecords(in []EventRecord) []EventRecord {
	if in == nil {
		return nil
	}
	out := make([]EventRecord, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Ptr returns a pointer to v. Handy for optional fields.
func Ptr[T any](v T) *T { return &v }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUint32(n *uint32) *uint32 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
