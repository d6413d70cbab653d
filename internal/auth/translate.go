// Copyright 2025 The vaultbroker Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import "strings"

// Store error prefixes for login validation failures. The raw messages are
// unhelpful to operators, so they are rewritten into phrases that name the
// setting to fix.
const (
	prefixValidateSecretID    = "failed to validate SecretID: "
	prefixValidateCredentials = "failed to validate credentials: "
)

const (
	msgSecretIncorrect = "secret ID is incorrect or expired"
	msgRoleIncorrect   = "role ID is incorrect or the role does not exist"
)

// translateLoginFailure rewrites a store login rejection into an
// operator-actionable message plus suggestion. Unknown messages pass
// through behind a generic prefix.
func translateLoginFailure(detail string) (message, suggestion string) {
	switch {
	case strings.Contains(detail, prefixValidateSecretID):
		return msgSecretIncorrect, "generate a new secret ID for the role and update the connection"

	case strings.Contains(detail, prefixValidateCredentials):
		rest := detail[strings.Index(detail, prefixValidateCredentials)+len(prefixValidateCredentials):]
		if strings.Contains(strings.ToLower(rest), "secret") {
			return msgSecretIncorrect, "generate a new secret ID for the role and update the connection"
		}
		return msgRoleIncorrect, "check the role ID against the store's auth backend"

	case detail == "":
		return "store rejected the login", ""

	default:
		return "store rejected the login: " + detail, ""
	}
}
