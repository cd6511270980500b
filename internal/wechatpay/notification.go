package wechatpay

import (
	"encoding/json"
	"fmt"
)

// Заголовки, с которыми шлюз доставляет уведомление.
const (
	HeaderTimestamp = "Wechatpay-Timestamp"
	HeaderNonce     = "Wechatpay-Nonce"
	HeaderSignature = "Wechatpay-Signature"
	HeaderSerial    = "Wechatpay-Serial"
)

// Notification — сырое уведомление шлюза: заголовки подписи плюс
// непреобразованное тело. Нигде не сохраняется, живет только на время
// обработки запроса.
type Notification struct {
	Timestamp string
	Nonce     string
	Signature string
	Serial    string
	Body      []byte
}

// notificationEnvelope — JSON тела уведомления. Сам платежный результат
// зашифрован в Resource.
type notificationEnvelope struct {
	ID           string            `json:"id"`
	EventType    string            `json:"event_type"`
	ResourceType string            `json:"resource_type"`
	Resource     EncryptedResource `json:"resource"`
}

type EncryptedResource struct {
	Algorithm      string `json:"algorithm"`
	Ciphertext     string `json:"ciphertext"`
	AssociatedData string `json:"associated_data"`
	OriginalType   string `json:"original_type"`
	Nonce          string `json:"nonce"`
}

// Состояния сделки по версии шлюза.
const (
	TradeStateSuccess    = "SUCCESS"
	TradeStateRefund     = "REFUND"
	TradeStateNotPay     = "NOTPAY"
	TradeStateClosed     = "CLOSED"
	TradeStateRevoked    = "REVOKED"
	TradeStateUserPaying = "USERPAYING"
	TradeStatePayError   = "PAYERROR"
)

// TradeResult — расшифрованный результат сделки. Начисление кредитов
// запускает только TradeState == TradeStateSuccess.
type TradeResult struct {
	OutTradeNo     string      `json:"out_trade_no"`
	TransactionID  string      `json:"transaction_id"`
	TradeState     string      `json:"trade_state"`
	TradeStateDesc string      `json:"trade_state_desc"`
	SuccessTime    string      `json:"success_time"`
	Amount         TradeAmount `json:"amount"`
}

type TradeAmount struct {
	Total      int64  `json:"total"`
	PayerTotal int64  `json:"payer_total"`
	Currency   string `json:"currency"`
}

// Paid — успешно оплаченная сделка.
func (t *TradeResult) Paid() bool {
	return t.TradeState == TradeStateSuccess
}

// DecodeTradeResult разбирает тело ПРОВЕРЕННОГО уведомления и расшифровывает
// ресурс ключом APIv3. Вызывается строго после Verifier.Verify: до проверки
// подписи тело считается недоверенным.
func DecodeTradeResult(body, apiKey []byte) (*TradeResult, error) {
	var envelope notificationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing notification envelope: %s", err.Error())
	}

	plaintext, decErr := DecryptAES256GCM(
		apiKey,
		envelope.Resource.Nonce,
		envelope.Resource.AssociatedData,
		envelope.Resource.Ciphertext,
	)
	if decErr != nil {
		return nil, decErr
	}

	var result TradeResult
	if err := json.Unmarshal(plaintext, &result); err != nil {
		return nil, fmt.Errorf("parsing trade result: %s", err.Error())
	}
	return &result, nil
}
