package utils_test

import (
	"testing"

	"bitbucket.org/agrindo/pks_backend/utils"
)

func TestJwtRoundTripCarriesAdminFlag(t *testing.T) {
	token, err := utils.JwtGenerate(7, "company-7", "Ops Admin", true)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	validated, err := utils.JwtValidate(token)
	if err != nil || !validated.Valid {
		t.Fatalf("JwtValidate: %v", err)
	}
	claim, ok := validated.Claims.(*utils.JwtCustomClaim)
	if !ok {
		t.Fatalf("claims have type %T, want *utils.JwtCustomClaim", validated.Claims)
	}
	if claim.ID != 7 || claim.CompanyId != "company-7" || claim.Name != "Ops Admin" {
		t.Fatalf("claim = %+v", claim)
	}
	if !claim.IsAdmin {
		t.Fatalf("admin flag lost in round trip")
	}

	regular, err := utils.JwtGenerate(8, "company-7", "Clerk", false)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	validated, err = utils.JwtValidate(regular)
	if err != nil || !validated.Valid {
		t.Fatalf("JwtValidate: %v", err)
	}
	if validated.Claims.(*utils.JwtCustomClaim).IsAdmin {
		t.Fatalf("clerk token must not carry the admin flag")
	}
}
