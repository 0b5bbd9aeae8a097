package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/notipi/internal/application"
	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// KeygenCmd mints a credential. The secret is printed once and only its
// hash is stored.
type KeygenCmd struct {
	Owner string `required:"" help:"Owner id the credential belongs to."`
	Name  string `help:"Human-readable label for the credential."`
	Plan  string `help:"Plan tier to record for the owner." default:"free" enum:"free,pro,enterprise"`
	Env   string `help:"Secret environment marker." default:"live" enum:"live,test"`
}

// Run stores the owner's plan and a new credential.
func (c *KeygenCmd) Run(cli *CLI) error {
	a, err := openApp(cli.EnvFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	now := time.Now().UTC()

	if err := a.owners.Upsert(ctx, model.Owner{ID: c.Owner, Plan: model.Plan(c.Plan), CreatedAt: now}); err != nil {
		return err
	}

	minted, err := application.GenerateSecret(c.Env, nil)
	if err != nil {
		return err
	}

	cred := model.Credential{
		ID:           "key_" + uuid.NewString(),
		OwnerID:      c.Owner,
		Name:         c.Name,
		LookupPrefix: minted.LookupPrefix,
		HashedSecret: minted.HashedSecret,
		CreatedAt:    now,
	}
	if err := a.credentials.Create(ctx, cred); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "id:     %s\nowner:  %s\nplan:   %s\nsecret: %s\n", cred.ID, c.Owner, c.Plan, minted.Secret)
	fmt.Fprintln(os.Stderr, "store the secret now; it cannot be shown again")
	return nil
}

// RevokeCmd revokes a credential by id.
type RevokeCmd struct {
	ID string `required:"" help:"Credential id to revoke."`
}

// Run flags the credential revoked. Later requests with it are rejected.
func (c *RevokeCmd) Run(cli *CLI) error {
	a, err := openApp(cli.EnvFile)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.credentials.Revoke(context.Background(), c.ID); err != nil {
		if errors.Is(err, driven.ErrCredentialNotFound) {
			return fmt.Errorf("credential %s does not exist", c.ID)
		}
		return err
	}
	fmt.Fprintf(os.Stdout, "revoked %s\n", c.ID)
	return nil
}

// SessionTokenCmd signs a session token with NOTIPI_SESSION_SECRET.
type SessionTokenCmd struct {
	Owner string        `required:"" help:"Owner id to put in the token subject."`
	TTL   time.Duration `name:"ttl" help:"Token lifetime." default:"1h"`
}

// Run prints the signed token.
func (c *SessionTokenCmd) Run(cli *CLI) error {
	a, err := openApp(cli.EnvFile)
	if err != nil {
		return err
	}
	defer a.close()

	verifier := application.NewSessionVerifier(a.cfg.SessionSecret)
	if verifier == nil {
		return errors.New("NOTIPI_SESSION_SECRET is not set")
	}

	token, err := verifier.Sign(c.Owner, c.TTL, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
