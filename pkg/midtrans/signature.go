package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureKey computes hex(SHA512(order_id + status_code + gross_amount + server_key))
// as sent by Midtrans with every HTTP notification.
func SignatureKey(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares a notification signature in constant time.
func VerifySignature(signature, orderID, statusCode, grossAmount, serverKey string) bool {
	expected := SignatureKey(orderID, statusCode, grossAmount, serverKey)
	got := strings.ToLower(strings.TrimSpace(signature))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
