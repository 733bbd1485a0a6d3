package line

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const profileEndpoint = "https://api.line.me/v2/profile"

// Profile はLINEログインのアクセストークンから解決したユーザー情報。
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// ProfileAPI はユーザー自身のアクセストークンでプロフィールを引く。
// bot用チャネルトークンの GetProfile とは別物（ログインチャネル側のAPI）。
type ProfileAPI struct {
	client   *http.Client
	endpoint string
}

func NewProfileAPI() *ProfileAPI {
	return &ProfileAPI{
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: profileEndpoint,
	}
}

func (p *ProfileAPI) GetByAccessToken(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile request failed: status %d", res.StatusCode)
	}

	var prof Profile
	if err := json.NewDecoder(res.Body).Decode(&prof); err != nil {
		return nil, err
	}
	if prof.UserID == "" {
		return nil, fmt.Errorf("profile response missing userId")
	}
	return &prof, nil
}
