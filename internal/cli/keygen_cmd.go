// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// keygen_cmd.go - The "keygen" command.

package cli

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/jeranaias/integritylog/internal/config"
	"github.com/jeranaias/integritylog/internal/security/audit"
	"github.com/jeranaias/integritylog/internal/security/keystore"
)

// HandleKeygen writes a new key file. With --passphrase the key is derived
// from a passphrase read from the terminal or stdin; the salt is printed so
// the key can be derived again.
func HandleKeygen(args Args, streams IO) error {
	p := NewArgParser(args.Raw, "passphrase")

	cfg, err := loadConfig(args, streams)
	if err != nil {
		return err
	}

	if p.HasFlag("salt") && !p.BoolFlag("passphrase") {
		return NewValidationErrorWithExample("--salt", p.Flag("salt"), "requires --passphrase", "integritylog keygen --passphrase --salt 30313233343536373839616263646566")
	}

	path := p.FlagOrDefault("out", p.Positional(0))
	if path == "" {
		path = cfg.Key.File
	}
	if path == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "audit.key")
	}

	var (
		secret  *audit.Secret
		saltHex string
	)
	if p.BoolFlag("passphrase") {
		secret, saltHex, err = keygenFromPassphrase(p, path, streams)
	} else {
		var size int
		size, err = p.FlagIntOrDefault("size", keystore.DefaultKeySize)
		if err != nil {
			return err
		}
		if size < keystore.MinKeySize {
			return NewValidationError("--size", fmt.Sprint(size), fmt.Sprintf("must be at least %d", keystore.MinKeySize))
		}
		secret, err = keystore.Generate(path, size)
	}
	if err != nil {
		return err
	}
	defer secret.Destroy()

	data := KeygenData{
		Path:        path,
		Size:        secret.Len(),
		Fingerprint: secret.Fingerprint(),
		Salt:        saltHex,
	}
	if args.JSON {
		return NewJSONResponse("keygen", data).Print(streams.Out)
	}

	fmt.Fprintf(streams.Out, "%s wrote %d-byte key to %s\n", RenderStatus(true), data.Size, data.Path)
	fmt.Fprintf(streams.Out, "%s%s\n", RenderLabel("Fingerprint:"), ValueStyle.Render(data.Fingerprint))
	if data.Salt != "" {
		fmt.Fprintf(streams.Out, "%s%s\n", RenderLabel("Salt:"), ValueStyle.Render(data.Salt))
		fmt.Fprintln(streams.Out, DimStyle.Render("Keep the salt; it is needed to derive this key again."))
	}
	return nil
}

func keygenFromPassphrase(p *ArgParser, path string, streams IO) (*audit.Secret, string, error) {
	var salt []byte
	if raw := p.Flag("salt"); raw != "" {
		decoded, err := hex.DecodeString(raw)
		if err != nil || len(decoded) < 8 {
			return nil, "", NewValidationError("--salt", raw, "must be at least 8 hex-encoded bytes")
		}
		salt = decoded
	} else {
		generated, err := keystore.NewSalt()
		if err != nil {
			return nil, "", err
		}
		salt = generated
	}

	pass, err := ReadPassphrase(streams.In, streams.Err, "Passphrase: ")
	if err != nil {
		return nil, "", err
	}
	defer func() {
		for i := range pass {
			pass[i] = 0
		}
	}()

	raw, err := keystore.DeriveFromPassphrase(pass, salt)
	if err != nil {
		return nil, "", err
	}
	secret, err := keystore.Save(path, raw)
	if err != nil {
		return nil, "", err
	}
	return secret, hex.EncodeToString(salt), nil
}
