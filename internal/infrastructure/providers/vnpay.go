package providers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
)

const (
	vnpVersion    = "2.1.0"
	vnpCommand    = "pay"
	vnpCurrency   = "VND"
	vnpOrderType  = "other"
	vnpDateLayout = "20060102150405"
)

// gateway timestamps are expressed in Indochina Time
var vnpLocation = time.FixedZone("GMT+7", 7*60*60)

// VNPayConfig holds the merchant credentials for the regional gateway.
type VNPayConfig struct {
	Endpoint     string
	MerchantCode string
	SecretKey    string
	ReturnURL    string
	Locale       string
}

// VNPaySigner builds HMAC-SHA512 signed VNPay payment URLs.
type VNPaySigner struct {
	cfg VNPayConfig
}

func NewVNPaySigner(cfg VNPayConfig) *VNPaySigner {
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	return &VNPaySigner{cfg: cfg}
}

// BuildPaymentURL returns the gateway URL for p. Parameters are sorted by
// name and the signature covers the encoded query string.
func (s *VNPaySigner) BuildPaymentURL(p checkoutApp.GatewayPayment) (string, error) {
	switch {
	case s.cfg.Endpoint == "":
		return "", errors.New("gateway endpoint is not configured")
	case s.cfg.MerchantCode == "":
		return "", errors.New("gateway merchant code is not configured")
	case s.cfg.SecretKey == "":
		return "", errors.New("gateway secret key is not configured")
	case p.Amount <= 0:
		return "", errors.New("gateway amount must be positive")
	case p.TxnRef == "":
		return "", errors.New("gateway transaction reference is required")
	}

	clientIP := p.ClientIP
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", vnpCommand)
	params.Set("vnp_TmnCode", s.cfg.MerchantCode)
	params.Set("vnp_Locale", s.cfg.Locale)
	params.Set("vnp_CurrCode", vnpCurrency)
	params.Set("vnp_TxnRef", p.TxnRef)
	params.Set("vnp_OrderInfo", p.OrderInfo)
	params.Set("vnp_OrderType", vnpOrderType)
	params.Set("vnp_Amount", strconv.FormatInt(p.Amount*100, 10))
	params.Set("vnp_ReturnUrl", s.cfg.ReturnURL)
	params.Set("vnp_IpAddr", clientIP)
	params.Set("vnp_CreateDate", createdAt.In(vnpLocation).Format(vnpDateLayout))

	// Encode sorts by key
	signData := params.Encode()

	return s.cfg.Endpoint + "?" + signData + "&vnp_SecureHash=" + s.sign(signData), nil
}

func (s *VNPaySigner) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(s.cfg.SecretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
