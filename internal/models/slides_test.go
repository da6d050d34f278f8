package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidePlanUnmarshal(t *testing.T) {
	t.Run("Standard shape with bullets", func(t *testing.T) {
		payload := `{"title":"Intro","bullets":["First","Second"],"notes":"Say hello"}`

		var plan SlidePlan
		err := json.Unmarshal([]byte(payload), &plan)

		require.NoError(t, err, "Standard payload should decode")
		assert.Equal(t, "Intro", plan.Title)
		assert.Equal(t, []string{"First", "Second"}, plan.Bullets)
		assert.Equal(t, "Say hello", plan.Notes)
		assert.Nil(t, plan.Image, "No image field should leave Image nil")
	})

	t.Run("Legacy body as single string", func(t *testing.T) {
		payload := `{"title":"Intro","body":"Just one line"}`

		var plan SlidePlan
		err := json.Unmarshal([]byte(payload), &plan)

		require.NoError(t, err, "Legacy string body should decode")
		assert.Equal(t, []string{"Just one line"}, plan.Bullets,
			"String body should become a single bullet")
	})

	t.Run("Legacy body as string list", func(t *testing.T) {
		payload := `{"title":"Intro","body":["One","Two","Three"]}`

		var plan SlidePlan
		err := json.Unmarshal([]byte(payload), &plan)

		require.NoError(t, err, "Legacy list body should decode")
		assert.Equal(t, []string{"One", "Two", "Three"}, plan.Bullets,
			"List body should map to bullets verbatim")
	})

	t.Run("Bullets win over legacy body", func(t *testing.T) {
		payload := `{"title":"Intro","bullets":["Kept"],"body":"Ignored"}`

		var plan SlidePlan
		err := json.Unmarshal([]byte(payload), &plan)

		require.NoError(t, err)
		assert.Equal(t, []string{"Kept"}, plan.Bullets,
			"Body should only be consulted when bullets are absent")
	})

	t.Run("Image as prompt string", func(t *testing.T) {
		payload := `{"title":"Intro","bullets":["A"],"image":"a red fox"}`

		var plan SlidePlan
		err := json.Unmarshal([]byte(payload), &plan)

		require.NoError(t, err)
		require.NotNil(t, plan.Image)
		assert.Equal(t, "a red fox", plan.Image.Prompt)
		assert.Nil(t, plan.Image.Meta, "Prompt form should carry no metadata")
		assert.False(t, plan.Image.Resolved())
	})

	t.Run("Image as metadata object", func(t *testing.T) {
		payload := `{"title":"Intro","bullets":["A"],"image":{"url":"http://localhost:8000/static/images/x.png","altText":"a red fox","provider":"dalle"}}`

		var plan SlidePlan
		err := json.Unmarshal([]byte(payload), &plan)

		require.NoError(t, err)
		require.NotNil(t, plan.Image)
		require.True(t, plan.Image.Resolved(), "Object form should be resolved")
		assert.Equal(t, "http://localhost:8000/static/images/x.png", plan.Image.Meta.URL)
		assert.Equal(t, "a red fox", plan.Image.Meta.AltText)
		assert.Equal(t, "dalle", plan.Image.Meta.Provider)
	})

	t.Run("Image of the wrong type is rejected", func(t *testing.T) {
		payload := `{"title":"Intro","bullets":["A"],"image":42}`

		var plan SlidePlan
		err := json.Unmarshal([]byte(payload), &plan)

		assert.Error(t, err, "A numeric image field should be rejected")
	})
}

func TestImageRefMarshal(t *testing.T) {
	t.Run("Prompt form serializes as a string", func(t *testing.T) {
		plan := SlidePlan{
			Title:   "Intro",
			Bullets: []string{"A"},
			Image:   &ImageRef{Prompt: "a red fox"},
		}

		data, err := json.Marshal(plan)

		require.NoError(t, err)
		assert.Contains(t, string(data), `"image":"a red fox"`)
	})

	t.Run("Resolved form serializes as an object", func(t *testing.T) {
		plan := SlidePlan{
			Title:   "Intro",
			Bullets: []string{"A"},
			Image: &ImageRef{Meta: &ImageMeta{
				URL:      "http://localhost:8000/static/images/x.png",
				AltText:  "a red fox",
				Provider: "dalle",
			}},
		}

		data, err := json.Marshal(plan)

		require.NoError(t, err)
		assert.Contains(t, string(data), `"provider":"dalle"`)
		assert.Contains(t, string(data), `"altText":"a red fox"`)
	})
}

func TestSlidePlanValidate(t *testing.T) {
	valid := SlidePlan{Title: "Intro", Bullets: []string{"First"}}

	t.Run("Valid slide passes", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("Empty title fails", func(t *testing.T) {
		plan := valid
		plan.Title = ""
		assert.Error(t, plan.Validate())
	})

	t.Run("Title limit counts runes, not bytes", func(t *testing.T) {
		plan := valid
		plan.Title = strings.Repeat("я", MaxTitleLength)
		assert.NoError(t, plan.Validate(), "A title of exactly the limit should pass")

		plan.Title = strings.Repeat("я", MaxTitleLength+1)
		assert.Error(t, plan.Validate(), "One rune over the limit should fail")
	})

	t.Run("Missing bullets fail", func(t *testing.T) {
		plan := valid
		plan.Bullets = nil
		assert.Error(t, plan.Validate())
	})

	t.Run("Empty bullet fails", func(t *testing.T) {
		plan := valid
		plan.Bullets = []string{"First", ""}
		assert.Error(t, plan.Validate())
	})

	t.Run("Overlong bullet fails", func(t *testing.T) {
		plan := valid
		plan.Bullets = []string{strings.Repeat("x", MaxBulletLength+1)}
		assert.Error(t, plan.Validate())
	})

	t.Run("Resolved image needs a valid URL", func(t *testing.T) {
		plan := valid
		plan.Image = &ImageRef{Meta: &ImageMeta{URL: "not a url", Provider: "dalle"}}
		assert.Error(t, plan.Validate())

		plan.Image = &ImageRef{Meta: &ImageMeta{URL: "https://example.com/a.png", Provider: "dalle"}}
		assert.NoError(t, plan.Validate())
	})
}

func TestValidateSlides(t *testing.T) {
	t.Run("Empty outline is rejected", func(t *testing.T) {
		assert.Error(t, ValidateSlides(nil))
	})

	t.Run("Error names the failing slide", func(t *testing.T) {
		slides := []SlidePlan{
			{Title: "Fine", Bullets: []string{"A"}},
			{Title: "", Bullets: []string{"B"}},
		}

		err := ValidateSlides(slides)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "slide 1", "The error should carry the slide index")
	})
}

func TestNormalizeImageURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", NormalizeImageURL("http://localhost:8000/"),
		"A root-only trailing slash should be stripped")
	assert.Equal(t, "http://localhost:8000/static/images/x.png",
		NormalizeImageURL("http://localhost:8000/static/images/x.png"),
		"Paths should pass through untouched")
	assert.Equal(t, "http://localhost:8000/?v=1", NormalizeImageURL("http://localhost:8000/?v=1"),
		"A query keeps the slash significant")
}
