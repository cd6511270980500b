package wechatpay

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	RouteNativeOrder  = "/v3/pay/transactions/native"
	RouteQueryOrder   = "/v3/pay/transactions/out-trade-no/%s?mchid=%s"
	RouteCertificates = "/v3/certificates"
)

// defaultAPITimeout — потолок на исходящий вызов шлюза. Вызовы синхронные и
// блокируют пользовательский запрос, поэтому таймаут ограничен.
const defaultAPITimeout = 30 * time.Second

// Client — HTTP клиент шлюза WeChat Pay v3. Каждый запрос подписывается через
// Signer. Клиент ничего не ретраит сам: слепой повтор создания заказа при
// неоднозначном сбое может породить дубль, решение остается за вызывающим.
type Client struct {
	appID      string
	mchID      string
	signer     *Signer
	apiKey     []byte
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL, appID, mchID string, signer *Signer, apiKey []byte) *Client {
	return &Client{
		appID:   appID,
		mchID:   mchID,
		signer:  signer,
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultAPITimeout,
		},
	}
}

type CreateOrderParams struct {
	Description string
	TradeRef    string
	Amount      int64 // в минимальных единицах
	NotifyURL   string
}

// createOrderRequest — тело запроса POST /v3/pay/transactions/native.
type createOrderRequest struct {
	AppID       string      `json:"appid"`
	MchID       string      `json:"mchid"`
	Description string      `json:"description"`
	OutTradeNo  string      `json:"out_trade_no"`
	NotifyURL   string      `json:"notify_url"`
	Amount      orderAmount `json:"amount"`
}

type orderAmount struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type createOrderResponse struct {
	CodeURL string `json:"code_url"`
}

// apiError — тело ответа шлюза при ошибке. Разбирается в типизированную
// StatusCodeError, а не в map: битое поле — ошибка декодирования, а не тихий
// nil.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateNativeOrder создает заказ в шлюзе и возвращает code_url — URI для
// отрисовки платежного QR-кода. Ответ без code_url или с не-2xx статусом —
// терминальная ошибка этого вызова.
func (c *Client) CreateNativeOrder(ctx context.Context, params CreateOrderParams) (string, error) {
	body, marshalErr := json.Marshal(createOrderRequest{
		AppID:       c.appID,
		MchID:       c.mchID,
		Description: params.Description,
		OutTradeNo:  params.TradeRef,
		NotifyURL:   params.NotifyURL,
		Amount: orderAmount{
			Total:    params.Amount,
			Currency: "CNY",
		},
	})
	if marshalErr != nil {
		return "", fmt.Errorf("marshal order request: %s", marshalErr.Error())
	}

	respBody, doErr := c.do(ctx, http.MethodPost, RouteNativeOrder, body)
	if doErr != nil {
		return "", doErr
	}

	var response createOrderResponse
	if jsonErr := json.Unmarshal(respBody, &response); jsonErr != nil {
		return "", fmt.Errorf("parse order response: %s", jsonErr.Error())
	}
	if response.CodeURL == "" {
		return "", errors.New("order response has no code_url")
	}
	return response.CodeURL, nil
}

// QueryOrder возвращает текущее состояние сделки по trade ref. Используется
// воркером сверки для заказов, по которым уведомление не пришло.
func (c *Client) QueryOrder(ctx context.Context, tradeRef string) (*TradeResult, error) {
	path := fmt.Sprintf(RouteQueryOrder, tradeRef, c.mchID)

	respBody, doErr := c.do(ctx, http.MethodGet, path, nil)
	if doErr != nil {
		return nil, doErr
	}

	var result TradeResult
	if jsonErr := json.Unmarshal(respBody, &result); jsonErr != nil {
		return nil, fmt.Errorf("parse query response: %s", jsonErr.Error())
	}
	return &result, nil
}

type certificatesResponse struct {
	Data []struct {
		SerialNo           string            `json:"serial_no"`
		EncryptCertificate EncryptedResource `json:"encrypt_certificate"`
	} `json:"data"`
}

// DownloadCertificates скачивает актуальные платформенные сертификаты шлюза.
// Каждый сертификат приходит зашифрованным ключом APIv3, расшифровывается тем
// же шифром что и ресурс уведомления. Результат предназначен для
// CertStore.Merge.
func (c *Client) DownloadCertificates(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	respBody, doErr := c.do(ctx, http.MethodGet, RouteCertificates, nil)
	if doErr != nil {
		return nil, doErr
	}

	var response certificatesResponse
	if jsonErr := json.Unmarshal(respBody, &response); jsonErr != nil {
		return nil, fmt.Errorf("parse certificates response: %s", jsonErr.Error())
	}

	keys := make(map[string]*rsa.PublicKey, len(response.Data))
	for _, entry := range response.Data {
		pemData, decErr := DecryptAES256GCM(
			c.apiKey,
			entry.EncryptCertificate.Nonce,
			entry.EncryptCertificate.AssociatedData,
			entry.EncryptCertificate.Ciphertext,
		)
		if decErr != nil {
			return nil, fmt.Errorf("decrypting certificate %s: %w", entry.SerialNo, decErr)
		}
		serial, key, parseErr := ParseCertificate(pemData)
		if parseErr != nil {
			return nil, fmt.Errorf("certificate %s: %s", entry.SerialNo, parseErr.Error())
		}
		keys[serial] = key
	}
	return keys, nil
}

// do выполняет подписанный запрос и возвращает тело успешного ответа.
// Не-2xx статус превращается в StatusCodeError с кодом и сообщением API.
//
//nolint:nonamedreturns
func (c *Client) do(ctx context.Context, method, path string, body []byte) (respBody []byte, err error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %s", reqErr.Error())
	}

	authHeader, authErr := c.signer.AuthorizationHeader(method, path, body)
	if authErr != nil {
		return nil, authErr
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("do request: %s", doErr.Error())
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("read response: %s", readErr.Error())
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr apiError
		// тело ошибки может быть не-JSON, тогда отдаем только статус.
		_ = json.Unmarshal(respBody, &apiErr)
		return nil, NewStatusCodeError(resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	return respBody, nil
}
