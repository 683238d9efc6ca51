package llm

import (
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

func TestParseExtraction(t *testing.T) {
	res, err := ParseExtraction("```json\n{\"first_name\":\" Ana \",\"last_name\":\"\",\"phone_number\":\"+386 41 348 050\",\"reply\":\"Thanks, Ana!\"}\n```")
	if err != nil {
		t.Fatalf("ParseExtraction returned error: %v", err)
	}
	if res.Updates[domain.FieldFirstName] != "Ana" {
		t.Fatalf("first name = %q", res.Updates[domain.FieldFirstName])
	}
	if _, ok := res.Updates[domain.FieldLastName]; ok {
		t.Fatalf("blank last name should be dropped")
	}
	if res.Updates[domain.FieldPhoneNumber] != "+386 41 348 050" {
		t.Fatalf("phone = %q", res.Updates[domain.FieldPhoneNumber])
	}
	if res.ReplyText != "Thanks, Ana!" {
		t.Fatalf("reply = %q", res.ReplyText)
	}
	if res.Abandon {
		t.Fatalf("abandon should be false")
	}
	if res.Confidence[domain.FieldFirstName] == 0 {
		t.Fatalf("expected confidence for extracted field")
	}
}

func TestParseExtractionAbandon(t *testing.T) {
	res, err := ParseExtraction(`{"reply":"Okay, stopping here.","abandon":true}`)
	if err != nil {
		t.Fatalf("ParseExtraction returned error: %v", err)
	}
	if !res.Abandon || len(res.Updates) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestParseExtractionErrors(t *testing.T) {
	if _, err := ParseExtraction("  "); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if _, err := ParseExtraction("```\n```"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse for empty fence, got %v", err)
	}
	if _, err := ParseExtraction("Sure! Your name is Ana."); err == nil {
		t.Fatalf("expected decode error for prose")
	}
}

func TestBuildContentsMapsRolesAndTrims(t *testing.T) {
	req := domain.ExtractionRequest{
		Message: "Novak",
		History: []domain.HistoryEntry{
			{Role: domain.RoleUser, Text: "hello"},
			{Role: domain.RoleAssistant, Text: "What is your first name?"},
			{Role: domain.RoleUser, Text: "Ana"},
			{Role: domain.RoleAssistant, Text: "And your last name?"},
		},
	}

	contents := buildContents(req, 2)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[0].Parts[0].Text != "Ana" {
		t.Fatalf("unexpected first content %+v", contents[0])
	}
	if contents[1].Role != genai.RoleModel {
		t.Fatalf("assistant entry should map to model role, got %q", contents[1].Role)
	}
	if last := contents[2]; last.Role != genai.RoleUser || last.Parts[0].Text != "Novak" {
		t.Fatalf("current message should be last, got %+v", last)
	}
}

func TestExtractionSchemaRequiresReply(t *testing.T) {
	schema := extractionSchema()
	if schema.Type != genai.TypeObject {
		t.Fatalf("schema type = %q", schema.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "reply" {
		t.Fatalf("required = %v", schema.Required)
	}
	for _, key := range []string{"first_name", "last_name", "phone_number", "reply", "abandon"} {
		if _, ok := schema.Properties[key]; !ok {
			t.Fatalf("schema missing %q", key)
		}
	}
}
