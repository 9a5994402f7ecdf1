package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type confirmPayload struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,otpcode"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := confirmPayload{
		Email: "alice@example.com",
		Code:  "123456",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := confirmPayload{
		Email: "invalid",
		Code:  "12-34",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(vErrs) != 2 {
		t.Fatalf("expected 2 validation errors, got %d", len(vErrs))
	}

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	if fields["email"] != "email" {
		t.Fatalf("expected email failure, got %+v", fields)
	}
	if fields["code"] != "otpcode" {
		t.Fatalf("expected otpcode failure, got %+v", fields)
	}
}

func TestIsEmail(t *testing.T) {
	if !IsEmail("a@x.com") {
		t.Fatal("expected a@x.com to be valid")
	}
	for _, input := range []string{"", "nope", "a@", "@x.com"} {
		if IsEmail(input) {
			t.Fatalf("expected %q to be invalid", input)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("authcore", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "authcore"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"authcore"`
	}

	if err := ValidateStruct(custom{Value: "authcore"}); err != nil {
		t.Fatalf("expected custom rule to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected custom rule to fail")
	}
}
