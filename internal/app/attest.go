package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mailru/easyjson"

	"cate-trust-layer/internal/anchor"
	"cate-trust-layer/internal/api"
	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/wire"
)

// ErrVerificationFailed is returned by Verify for an invalid decision.
var ErrVerificationFailed = errors.New("decision verification failed")

// KeygenOptions configures Keygen.
type KeygenOptions struct {
	// OutPath writes a Solana CLI keypair file. Empty prints the secret key.
	OutPath string
	Force   bool
}

// Keygen creates a new signing key.
func (a *App) Keygen(opts KeygenOptions, w io.Writer) error {
	if opts.OutPath != "" && !opts.Force {
		if _, err := os.Stat(opts.OutPath); err == nil {
			return fmt.Errorf("%s already exists; use --force to overwrite", opts.OutPath)
		}
	}

	key, err := attestation.GenerateKeypair()
	if err != nil {
		return err
	}
	engine, err := attestation.NewEngine(key)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "public key: %s\n", engine.Identity())
	if opts.OutPath == "" {
		fmt.Fprintf(w, "secret key: %s\n", attestation.EncodeSecretKey(key))
		return nil
	}
	if err := attestation.WriteKeypairFile(opts.OutPath, key); err != nil {
		return err
	}
	fmt.Fprintf(w, "keypair:    %s\n", opts.OutPath)
	return nil
}

// Sign signs req offline with the configured key and writes the wire JSON.
// A zero timestamp means now and a zero nonce draws from the engine.
func (a *App) Sign(req api.SignRequest, w io.Writer) error {
	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	now := time.Now()
	if req.Timestamp == 0 {
		req.Timestamp = now.Unix()
	}
	if err := api.ValidateSignRequest(req, now, a.Config.Server.TimestampWindow); err != nil {
		return err
	}

	sd, err := engine.Sign(api.PayloadFromRequest(req))
	if err != nil {
		return err
	}
	return writeWire(w, wire.FromDomain(sd))
}

// VerifyOptions configures Verify.
type VerifyOptions struct {
	// Trusted is a base58 signer the decision must come from. Empty checks
	// only that the decision is self-consistent.
	Trusted string
}

// Verify reads a wire decision from r and reports whether it is valid.
func (a *App) Verify(r io.Reader, opts VerifyOptions, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read decision: %w", err)
	}
	var in wire.SignedDecision
	if err := easyjson.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode decision: %w", err)
	}
	sd, err := in.ToDomain()
	if err != nil {
		return err
	}

	res := attestation.Verify(sd)
	if opts.Trusted != "" {
		trusted, err := attestation.ParsePublicKey(opts.Trusted)
		if err != nil {
			return fmt.Errorf("trusted signer: %w", err)
		}
		res = attestation.VerifyTrusted(sd, trusted)
	}

	if !res.Valid {
		fmt.Fprintf(w, "INVALID: %v\n", res.Err)
		return ErrVerificationFailed
	}
	fmt.Fprintf(w, "VALID: %s %s signed by %s\n", sd.Payload.AssetID, sd.Payload.Action, in.Signer)
	return nil
}

// PDA prints the anchor program addresses, including the asset status
// account when assetID is set.
func (a *App) PDA(assetID string, w io.Writer) error {
	programID, err := a.programID()
	if err != nil {
		return err
	}

	cfgAddr, cfgBump, err := anchor.ConfigAddress(programID)
	if err != nil {
		return err
	}
	usedAddr, usedBump, err := anchor.UsedDecisionsAddress(programID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "program:        %s\n", programID)
	fmt.Fprintf(w, "config:         %s (bump %d)\n", cfgAddr, cfgBump)
	fmt.Fprintf(w, "used_decisions: %s (bump %d)\n", usedAddr, usedBump)

	if assetID == "" {
		return nil
	}
	assetAddr, assetBump, err := anchor.AssetRiskAddress(programID, assetID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "asset_risk:     %s (bump %d) %s\n", assetAddr, assetBump, assetID)
	return nil
}

func writeWire(w io.Writer, sd wire.SignedDecision) error {
	data, err := easyjson.Marshal(sd)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
