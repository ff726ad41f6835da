package auth

import (
	"encoding/base64"
	"net/http"
)

// BasicHeader returns the Authorization value for principal:secret.
func BasicHeader(principal, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(principal+":"+secret))
}

// SetBasic attaches Basic credentials to req. Nothing is attached when both are empty.
func SetBasic(req *http.Request, principal, secret string) {
	if principal == "" && secret == "" {
		return
	}
	req.Header.Set("Authorization", BasicHeader(principal, secret))
}
