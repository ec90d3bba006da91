package anchor

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"
)

// Ledger is an in-memory stand-in for the deployed program: it executes
// transactions against its own account state with the same checks.
// Used by tests and by `cate serve` when no RPC endpoint is configured.
type Ledger struct {
	programID PublicKey
	verifier  *Verifier

	mu         sync.RWMutex
	configAddr PublicKey
	config     Config
	usedAddr   PublicKey
	used       UsedDecisions
	assets     map[PublicKey]AssetRiskStatus
}

// NewLedger initializes config and the replay set, as initialize_config does.
func NewLedger(programID, authority, trustedSigner PublicKey, verifier *Verifier) (*Ledger, error) {
	if verifier == nil {
		verifier = NewVerifier()
	}
	configAddr, configBump, err := ConfigAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive config address: %w", err)
	}
	usedAddr, usedBump, err := UsedDecisionsAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive used decisions address: %w", err)
	}

	return &Ledger{
		programID:  programID,
		verifier:   verifier,
		configAddr: configAddr,
		config: Config{
			Bump:          configBump,
			Authority:     authority,
			IsInitialized: true,
			TrustedSigner: trustedSigner,
		},
		usedAddr: usedAddr,
		used:     UsedDecisions{Bump: usedBump, MaxSize: DefaultUsedDecisionsCapacity},
		assets:   make(map[PublicKey]AssetRiskStatus),
	}, nil
}

// ProgramID returns the program this ledger emulates.
func (l *Ledger) ProgramID() PublicKey {
	return l.programID
}

// Config returns a copy of the program config.
func (l *Ledger) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// UsedCount returns the number of decisions in the replay set.
func (l *Ledger) UsedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.used.Decisions)
}

// Submit executes ixs atomically on behalf of payer: either every
// instruction succeeds and state is committed, or nothing changes.
func (l *Ledger) Submit(_ context.Context, payer PublicKey, ixs []Instruction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	config := l.config
	used := UsedDecisions{
		Bump:      l.used.Bump,
		MaxSize:   l.used.MaxSize,
		Decisions: append([]DecisionRecord(nil), l.used.Decisions...),
	}
	writes := make(map[PublicKey]AssetRiskStatus)

	for i, ix := range ixs {
		switch ix.ProgramID {
		case Ed25519ProgramID:
			if err := executeEd25519(ix.Data); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		case l.programID:
			if err := l.execute(&config, &used, writes, payer, ixs, i); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		default:
			return fmt.Errorf("instruction %d: %w: program %s", i, ErrUnknownInstruction, ix.ProgramID)
		}
	}

	l.config = config
	l.used = used
	for addr, s := range writes {
		l.assets[addr] = s
	}
	return nil
}

func (l *Ledger) execute(config *Config, used *UsedDecisions, writes map[PublicKey]AssetRiskStatus,
	payer PublicKey, ixs []Instruction, index int) error {
	data := ixs[index].Data
	if len(data) < 8 {
		return ErrUnknownInstruction
	}

	switch [8]byte(data[:8]) {
	case InstructionDiscriminator(IxUpdateRiskStatus):
		if !config.IsInitialized {
			return ErrNotInitialized
		}
		if payer != config.Authority {
			return ErrUnauthorized
		}
		args, err := l.verifier.VerifyPublish(*config, used, ixs, index)
		if err != nil {
			return err
		}
		if err := used.MarkUsed(args.DecisionHash, args.Timestamp); err != nil {
			return err
		}

		addr, bump, err := AssetRiskAddress(l.programID, args.AssetID)
		if err != nil {
			return err
		}
		status := AssetRiskStatus{
			Bump:            bump,
			RiskScore:       args.RiskScore,
			IsBlocked:       args.IsBlocked,
			LastUpdated:     l.verifier.Now(),
			Timestamp:       args.Timestamp,
			ConfidenceRatio: args.ConfidenceRatio,
			PublisherCount:  args.PublisherCount,
			DecisionHash:    args.DecisionHash,
			Signature:       args.Signature,
			SignerPubkey:    args.SignerPubkey,
		}
		copy(status.AssetID[:], args.AssetID)
		writes[addr] = status
		return nil

	case InstructionDiscriminator(IxUpdateTrustedSigner):
		if !config.IsInitialized {
			return ErrNotInitialized
		}
		if payer != config.Authority {
			return ErrUnauthorized
		}
		newSigner, err := DecodeUpdateTrustedSigner(data)
		if err != nil {
			return err
		}
		config.TrustedSigner = newSigner
		config.Nonce++
		return nil
	}
	return ErrUnknownInstruction
}

// executeEd25519 performs the native program's signature checks.
func executeEd25519(data []byte) error {
	entries, err := ParseEd25519Instruction(data)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Offsets.SignatureInstructionIndex != CurrentInstruction ||
			e.Offsets.PublicKeyInstructionIndex != CurrentInstruction ||
			e.Offsets.MessageInstructionIndex != CurrentInstruction {
			return fmt.Errorf("%w: cross-instruction offsets not supported", ErrInvalidEd25519Data)
		}
		if !ed25519.Verify(ed25519.PublicKey(e.PublicKey), e.Message, e.Signature) {
			return ErrInvalidSignature
		}
	}
	return nil
}

// UpdateTrustedSigner rotates the trusted signer. Only the authority may.
func (l *Ledger) UpdateTrustedSigner(ctx context.Context, authority, newSigner PublicKey) error {
	ix, err := NewUpdateTrustedSignerInstruction(l.programID, authority, newSigner)
	if err != nil {
		return err
	}
	return l.Submit(ctx, authority, []Instruction{ix})
}

// AccountData implements AccountReader over the ledger's accounts.
func (l *Ledger) AccountData(_ context.Context, address string) ([]byte, error) {
	addr, err := ParsePublicKey(address)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	switch addr {
	case l.configAddr:
		return l.config.Encode(), nil
	case l.usedAddr:
		return l.used.Encode(), nil
	}
	if s, ok := l.assets[addr]; ok {
		return s.Encode(), nil
	}
	return nil, nil
}

// Assets returns the asset ids with a published status.
func (l *Ledger) Assets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.assets))
	for _, s := range l.assets {
		out = append(out, s.Asset())
	}
	return out
}

// Now returns the ledger's cluster time.
func (l *Ledger) Now() time.Time {
	return time.Unix(l.verifier.Now(), 0)
}
