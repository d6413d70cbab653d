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

import (
	"strings"
	"testing"
)

func TestTranslateLoginFailure(t *testing.T) {
	tests := []struct {
		name    string
		detail  string
		wantMsg string
	}{
		{
			name:    "secret id validation",
			detail:  "failed to validate SecretID: invalid secret id",
			wantMsg: msgSecretIncorrect,
		},
		{
			name:    "credentials validation naming secret",
			detail:  "failed to validate credentials: invalid secret id accessor",
			wantMsg: msgSecretIncorrect,
		},
		{
			name:    "credentials validation for role",
			detail:  "failed to validate credentials: invalid role ID",
			wantMsg: msgRoleIncorrect,
		},
		{
			name:    "unknown error passes through",
			detail:  "connection to backend lost",
			wantMsg: "store rejected the login: connection to backend lost",
		},
		{
			name:    "empty detail",
			detail:  "",
			wantMsg: "store rejected the login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, _ := translateLoginFailure(tt.detail)
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("translateLoginFailure(%q) = %q, want containing %q", tt.detail, msg, tt.wantMsg)
			}
		})
	}
}
