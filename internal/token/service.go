// Package token は外部署名者向け招待トークンの発行・検証を提供する。
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/shomei/internal/model"
	"github.com/hitoshi/shomei/internal/repository"
)

// Service は招待トークンサービスのインターフェースを定義する。
type Service interface {
	// IssueForSigner は署名者向けの新しい招待トークンを発行し永続化する。
	IssueForSigner(ctx context.Context, signerID, envelopeID string) (*model.InvitationToken, error)

	// FindActiveToken は署名者の有効な（期限切れでない）トークンを返す。
	// 複数ある場合は最新のものを返し、有効なトークンがない場合は(nil, nil)を返す。
	FindActiveToken(ctx context.Context, signerID string) (*model.InvitationToken, error)

	// MarkResent はトークンの再送実績を記録する。
	MarkResent(ctx context.Context, tokenID string) error

	// Verify はトークン文字列を検証し、署名者IDとエンベロープIDを返す。
	Verify(tokenString string) (signerID, envelopeID string, err error)
}

// invitationClaims は招待トークンのJWTクレーム。
// subは署名者ID、jtiはトークンレコードIDを保持する。
type invitationClaims struct {
	EnvelopeID string `json:"envelope_id"`
	jwt.RegisteredClaims
}

// tokenService はServiceの実装。
type tokenService struct {
	tokenRepo repository.InvitationTokenRepository
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewService はトークンサービスを生成する。
// secretはHMAC-SHA256の署名鍵、ttlはトークンの有効期間。
func NewService(tokenRepo repository.InvitationTokenRepository, secret string, ttl time.Duration) *tokenService {
	return &tokenService{
		tokenRepo: tokenRepo,
		secret:    []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// IssueForSigner は署名者向けの新しい招待トークンを発行し永続化する。
func (s *tokenService) IssueForSigner(ctx context.Context, signerID, envelopeID string) (*model.InvitationToken, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	tokenID := uuid.NewString()

	claims := invitationClaims{
		EnvelopeID: envelopeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   signerID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}

	token := &model.InvitationToken{
		ID:         tokenID,
		SignerID:   signerID,
		EnvelopeID: envelopeID,
		Token:      signed,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}
	return token, nil
}

// FindActiveToken は署名者の有効なトークンを返す。
// ListBySignerIDは作成日時降順のため、最初に見つかった未期限切れのものが最新。
func (s *tokenService) FindActiveToken(ctx context.Context, signerID string) (*model.InvitationToken, error) {
	tokens, err := s.tokenRepo.ListBySignerID(ctx, signerID)
	if err != nil {
		return nil, fmt.Errorf("トークン一覧の取得に失敗しました: %w", err)
	}

	now := s.now()
	for _, token := range tokens {
		if !token.IsExpiredAt(now) {
			return token, nil
		}
	}
	return nil, nil
}

// MarkResent はトークンの再送実績を記録する。
func (s *tokenService) MarkResent(ctx context.Context, tokenID string) error {
	if err := s.tokenRepo.MarkSent(ctx, tokenID, s.now()); err != nil {
		return fmt.Errorf("再送実績の記録に失敗しました: %w", err)
	}
	return nil
}

// Verify はトークン文字列を検証し、署名者IDとエンベロープIDを返す。
// 署名不正・期限切れの場合はエラーを返す。
func (s *tokenService) Verify(tokenString string) (string, string, error) {
	claims := &invitationClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", fmt.Errorf("トークンの検証に失敗しました: %w", err)
	}

	if claims.Subject == "" || claims.EnvelopeID == "" {
		return "", "", fmt.Errorf("トークンのクレームが不正です")
	}
	return claims.Subject, claims.EnvelopeID, nil
}
