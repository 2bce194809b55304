package ports

import (
	"context"
	"twitchbot/internal/app/domain/credential"
	"twitchbot/internal/app/infrastructure/storage"
)

type CredentialStorePort interface {
	ListCredentials(ctx context.Context) ([]string, error)
	LoadCredential(ctx context.Context, name string) (credential.Credential, error)
	SaveCredential(ctx context.Context, name string, cred credential.Credential) error
	DeleteCredential(ctx context.Context, name string) error
}

type SessionStorePort interface {
	ListSessions(ctx context.Context) ([]string, error)
	LoadSession(ctx context.Context, name string) (storage.SessionRecord, error)
	CreateSession(ctx context.Context, name string, rec storage.SessionRecord) error
	DeleteSession(ctx context.Context, name string) error
}

type StorePort interface {
	CredentialStorePort
	SessionStorePort
}
