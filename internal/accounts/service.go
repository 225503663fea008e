// Package accounts links user mailboxes to the mail gateway and manages which one is active.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

// Service errors
var (
	ErrCredentialNotFound = repository.ErrCredentialNotFound
	ErrCredentialExists   = repository.ErrCredentialExists
	ErrForbidden          = errors.New("credential belongs to another user")
	ErrGatewayFailed      = errors.New("failed to register mailbox with mail gateway")
	ErrMissingRedirect    = errors.New("mail gateway returned no authorization redirect")
)

// ProviderMicrosoft mailboxes link through OAuth2 instead of a password
const ProviderMicrosoft = "microsoft"

// Defaults applied when a link request leaves the server settings empty
const (
	DefaultProvider = "gmail"
	DefaultIMAPHost = "imap.gmail.com"
	DefaultIMAPPort = 993
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 587
)

var providerNames = map[string]string{
	"gmail":        "Gmail",
	"privateemail": "privateEmail",
	"yahoo":        "Yahoo",
	"outlook":      "Outlook",
}

// Store is the credential persistence used by the service
type Store interface {
	Create(ctx context.Context, cred *repository.Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Credential, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]repository.Credential, error)
	SetActive(ctx context.Context, userID, credentialID uuid.UUID) error
	SetGatewayIDs(ctx context.Context, id uuid.UUID, accountID, gatewayID *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Gateway registers mailboxes and SMTP relays with the mail gateway
type Gateway interface {
	CreateAccount(ctx context.Context, req gateway.CreateAccountRequest) (*gateway.CreateAccountResponse, error)
	CreateGateway(ctx context.Context, req gateway.CreateGatewayRequest) (*gateway.CreateGatewayResponse, error)
}

// OAuthConfig holds the OAuth2 settings used for Microsoft mailboxes
type OAuthConfig struct {
	RedirectURL string
	ProviderID  string
}

// LinkInput describes a mailbox to link
type LinkInput struct {
	EmailAddress string
	Password     string
	Provider     string
	IMAPHost     string
	IMAPPort     int
	SMTPHost     string
	SMTPPort     int
}

// LinkResult is the outcome of a successful link
type LinkResult struct {
	Credential *repository.Credential
	// RedirectURL is where the user must go to grant OAuth2 consent, if anywhere
	RedirectURL string
}

// Service handles account linking and switching
type Service struct {
	store   Store
	gateway Gateway
	oauth   OAuthConfig
	logger  *slog.Logger
}

// NewService creates a new accounts Service
func NewService(store Store, gw Gateway, oauth OAuthConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, gateway: gw, oauth: oauth, logger: logger}
}

// List returns the user's credentials, oldest first
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]repository.Credential, error) {
	creds, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return creds, nil
}

// Get returns one of the user's credentials
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*repository.Credential, error) {
	cred, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if cred.UserID != userID {
		return nil, ErrForbidden
	}
	return cred, nil
}

// Link stores a credential and registers it with the mail gateway.
// If the gateway rejects the mailbox the stored credential is removed again.
func (s *Service) Link(ctx context.Context, userID uuid.UUID, in LinkInput) (*LinkResult, error) {
	in = withDefaults(in)
	microsoft := in.Provider == ProviderMicrosoft

	cred := &repository.Credential{
		UserID:       userID,
		EmailAddress: in.EmailAddress,
		Provider:     in.Provider,
	}
	if !microsoft {
		cred.IMAPHost, cred.IMAPPort = &in.IMAPHost, &in.IMAPPort
		cred.SMTPHost, cred.SMTPPort = &in.SMTPHost, &in.SMTPPort
	}

	if err := s.store.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrCredentialExists) {
			return nil, ErrCredentialExists
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	accountID, gatewayID, redirect, err := s.register(ctx, in, microsoft)
	if err != nil {
		if delErr := s.store.Delete(ctx, cred.ID); delErr != nil {
			s.logger.Error("Failed to remove credential after gateway failure",
				slog.String("account_id", cred.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}

	if accountID != nil || gatewayID != nil {
		if err := s.store.SetGatewayIDs(ctx, cred.ID, accountID, gatewayID); err != nil {
			return nil, fmt.Errorf("failed to store gateway ids: %w", err)
		}
		cred.GatewayAccountID, cred.GatewayID = accountID, gatewayID
	}

	s.logger.Info("Mailbox linked",
		slog.String("user_id", userID.String()),
		slog.String("account_id", cred.ID.String()),
		slog.String("provider", in.Provider),
		slog.Bool("active", cred.IsActive),
	)
	return &LinkResult{Credential: cred, RedirectURL: redirect}, nil
}

// register creates the gateway account and, for password mailboxes, its SMTP relay
func (s *Service) register(ctx context.Context, in LinkInput, microsoft bool) (accountID, gatewayID *string, redirect string, err error) {
	req := gateway.CreateAccountRequest{
		Account: in.EmailAddress,
		Name:    localPart(in.EmailAddress),
		Email:   in.EmailAddress,
	}
	if microsoft {
		req.OAuth2 = &gateway.OAuth2Settings{
			Authorize:   true,
			RedirectURL: s.oauth.RedirectURL,
			Provider:    s.oauth.ProviderID,
		}
	} else {
		req.IMAP = serverSettings(in.EmailAddress, in.Password, in.IMAPHost, in.IMAPPort)
		req.SMTP = serverSettings(in.EmailAddress, in.Password, in.SMTPHost, in.SMTPPort)
	}

	account, err := s.gateway.CreateAccount(ctx, req)
	if err != nil {
		s.logger.Warn("Gateway account creation failed",
			slog.String("email_address", in.EmailAddress),
			slog.String("error", err.Error()),
		)
		return nil, nil, "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}

	if microsoft {
		if account.Redirect == "" {
			return nil, nil, "", ErrMissingRedirect
		}
		return nil, nil, account.Redirect, nil
	}

	relay, err := s.gateway.CreateGateway(ctx, gateway.CreateGatewayRequest{
		Gateway: in.EmailAddress,
		Name:    providerName(in.Provider),
		User:    in.EmailAddress,
		Pass:    in.Password,
		Host:    in.SMTPHost,
		Port:    in.SMTPPort,
	})
	if err != nil {
		s.logger.Warn("Gateway relay creation failed",
			slog.String("email_address", in.EmailAddress),
			slog.String("error", err.Error()),
		)
		return nil, nil, "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}

	accountID, gatewayID = nonEmpty(account.Account), nonEmpty(relay.Gateway)
	return accountID, gatewayID, "", nil
}

// Delete removes one of the user's credentials
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	s.logger.Info("Mailbox unlinked",
		slog.String("user_id", userID.String()),
		slog.String("account_id", id.String()),
	)
	return nil
}

// Switch makes id the user's only active credential
func (s *Service) Switch(ctx context.Context, userID, id uuid.UUID) (*repository.Credential, error) {
	cred, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetActive(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to switch active credential: %w", err)
	}
	cred.IsActive = true

	s.logger.Info("Active mailbox switched",
		slog.String("user_id", userID.String()),
		slog.String("account_id", id.String()),
	)
	return cred, nil
}

func withDefaults(in LinkInput) LinkInput {
	in.EmailAddress = repository.NormalizeAddress(in.EmailAddress)
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	if in.Provider == "" {
		in.Provider = DefaultProvider
	}
	if in.IMAPHost == "" {
		in.IMAPHost = DefaultIMAPHost
	}
	if in.IMAPPort == 0 {
		in.IMAPPort = DefaultIMAPPort
	}
	if in.SMTPHost == "" {
		in.SMTPHost = DefaultSMTPHost
	}
	if in.SMTPPort == 0 {
		in.SMTPPort = DefaultSMTPPort
	}
	return in
}

func serverSettings(user, pass, host string, port int) *gateway.ServerSettings {
	s := &gateway.ServerSettings{Host: host, Port: port, Secure: true}
	s.Auth.User = user
	s.Auth.Pass = pass
	return s
}

func providerName(provider string) string {
	if name, ok := providerNames[provider]; ok {
		return name
	}
	return provider
}

func localPart(address string) string {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		return address[:i]
	}
	return address
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
