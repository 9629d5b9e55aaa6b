package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCode_Valid(t *testing.T) {
	code := `import httpx

async def main(city: str, days: int = 3):
    """Fetch a forecast."""
    async with httpx.AsyncClient() as client:
        resp = await client.get(f"https://api.example.com/{city}")
    return {"days": days, "data": resp.json()}
`
	assert.Empty(t, ValidateCode(code))
}

func TestValidateCode_Empty(t *testing.T) {
	issues := ValidateCode("   \n  ")
	require.Len(t, issues, 1)
	assert.Equal(t, "code is empty", issues[0].Message)
}

func TestValidateCode_MissingMain(t *testing.T) {
	issues := ValidateCode("x = 1\n")
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Message, "missing entry point")
}

func TestValidateCode_SyncMain(t *testing.T) {
	issues := ValidateCode("def main(x):\n    return x\n")
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Message, "must be declared async")
}

func TestValidateCode_UnbalancedBrackets(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"unclosed paren", "async def main(:\n    return [1, 2\n", "unclosed"},
		{"stray closer", "async def main():\n    return 1)\n", "unbalanced"},
		{"mismatched pair", "async def main():\n    return [1}\n", "unbalanced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := ValidateCode(tt.code)
			require.NotEmpty(t, issues)
			found := false
			for _, issue := range issues {
				if len(issue.Message) >= len(tt.want) && issue.Message[:len(tt.want)] == tt.want {
					found = true
				}
			}
			assert.True(t, found, "expected an issue starting with %q, got %v", tt.want, issues)
		})
	}
}

func TestValidateCode_BracketsInStringsIgnored(t *testing.T) {
	code := `async def main():
    tmpl = "closing ) and { are fine here"
    comment_like = 'also ( this'  # and ( in a comment
    return tmpl
`
	assert.Empty(t, ValidateCode(code))
}

func TestValidateCode_UnterminatedString(t *testing.T) {
	issues := ValidateCode("async def main():\n    x = \"oops\n    return x\n")
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Message, "unterminated string")
}

func TestValidateCode_TripleQuotedStrings(t *testing.T) {
	code := "async def main():\n    doc = \"\"\"spans\nlines with ) and (\n\"\"\"\n    return doc\n"
	assert.Empty(t, ValidateCode(code))
}

func TestDeriveInputSchema_TypesAndDefaults(t *testing.T) {
	code := `async def main(city: str, days: int = 3, strict: bool = False, tags: list = None, meta: dict = None, rate: float = 1.0):
    return city
`
	raw, err := DeriveInputSchema(code)
	require.NoError(t, err)

	var schema struct {
		Type       string                       `json:"type"`
		Properties map[string]map[string]string `json:"properties"`
		Required   []string                     `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))

	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, "string", schema.Properties["city"]["type"])
	assert.Equal(t, "integer", schema.Properties["days"]["type"])
	assert.Equal(t, "boolean", schema.Properties["strict"]["type"])
	assert.Equal(t, "array", schema.Properties["tags"]["type"])
	assert.Equal(t, "object", schema.Properties["meta"]["type"])
	assert.Equal(t, "number", schema.Properties["rate"]["type"])
	assert.Equal(t, []string{"city"}, schema.Required)
}

func TestDeriveInputSchema_MultilineSignature(t *testing.T) {
	code := `async def main(
    query: str,
    limit: Optional[int] = 10,
    options: dict[str, str] = None,
):
    return query
`
	raw, err := DeriveInputSchema(code)
	require.NoError(t, err)

	var schema struct {
		Properties map[string]map[string]string `json:"properties"`
		Required   []string                     `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))

	assert.Equal(t, "string", schema.Properties["query"]["type"])
	assert.Equal(t, "integer", schema.Properties["limit"]["type"])
	assert.Equal(t, "object", schema.Properties["options"]["type"])
	assert.Equal(t, []string{"query"}, schema.Required)
}

func TestDeriveInputSchema_NoParams(t *testing.T) {
	raw, err := DeriveInputSchema("async def main():\n    return 1\n")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["required"])
}

func TestDeriveInputSchema_SkipsVariadics(t *testing.T) {
	raw, err := DeriveInputSchema("async def main(a: str, *args, **kwargs):\n    return a\n")
	require.NoError(t, err)

	var schema struct {
		Properties map[string]map[string]string `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Len(t, schema.Properties, 1)
}

func TestDeriveInputSchema_DefaultWithComma(t *testing.T) {
	raw, err := DeriveInputSchema(`async def main(sep: str = ", ", text: str = "x"):
    return text
`)
	require.NoError(t, err)

	var schema struct {
		Properties map[string]map[string]string `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Len(t, schema.Properties, 2)
	assert.Contains(t, schema.Properties, "sep")
	assert.Contains(t, schema.Properties, "text")
}

func TestExtractDependencies(t *testing.T) {
	code := `import httpx
import os, json
import pandas.io.json as pj
from bs4 import BeautifulSoup
from collections.abc import Mapping

async def main():
    return None
`
	deps := ExtractDependencies(code)
	assert.Equal(t, []string{"bs4", "collections", "httpx", "json", "os", "pandas"}, deps)
}

func TestExtractDependencies_None(t *testing.T) {
	assert.Nil(t, ExtractDependencies("async def main():\n    return 1\n"))
}
