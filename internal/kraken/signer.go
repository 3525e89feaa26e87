package kraken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"strconv"
)

// SignedRequest 为一次私有接口调用的签名结果。
type SignedRequest struct {
	Path      string
	Nonce     int64
	Body      string
	Signature string
}

// Sign 计算 Kraken API-Sign:
// base64(HMAC-SHA512(base64dec(secret), path + SHA256(nonce + body)))。
// body 必须已包含同一个 nonce 字段。
func Sign(secret, path string, nonce int64, body string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", &SignatureError{Err: err}
	}

	digest := sha256.Sum256([]byte(strconv.FormatInt(nonce, 10) + body))

	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// signRequest 组装签名信封。
func signRequest(creds Credentials, path string, nonce int64, body string) (SignedRequest, error) {
	signature, err := Sign(creds.APISecret, path, nonce, body)
	if err != nil {
		return SignedRequest{}, err
	}
	return SignedRequest{
		Path:      path,
		Nonce:     nonce,
		Body:      body,
		Signature: signature,
	}, nil
}
