package extract

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

const loginPage = `<html><body>
<form id="loginform" method="post" action="/admin/">
  <input type="hidden" name="token" value="abc123" />
  <input type="text" name="username" />
</form>
</body></html>`

const changePage = `<form method="post" action="/admin/current/change">
<select id="gametype" name="gametype">
  <option value="KFGameContent.KFGameInfo_Survival" selected="selected">Survival</option>
</select>
<select id="map" name="map">
  <option value="KF-BioticsLab">Biotics Lab</option>
  <option value="KF-SteamFortress" selected="selected">Steam Fortress</option>
  <option value="KF-Outpost">Outpost</option>
</select>
</form>`

const infoPage = `<h2>Current game</h2>
<dl id="currentGame"><dt>Map</dt><dd>KF-Outpost</dd></dl>
<dl id="currentRules">
  <dt>Difficulty</dt><dd>Hard</dd>
  <dt>Players</dt><dd>3/6</dd>
</dl>`

func TestFindToken(t *testing.T) {
	e := NewRegexExtractor()

	tok, ok := e.Find(loginPage, Token)
	assert.True(t, ok)
	assert.Equal(t, "abc123", tok)

	_, ok = e.Find("<html>nothing here</html>", Token)
	assert.False(t, ok)
}

// TestFindSelectedMap ignores selected options of other select elements
func TestFindSelectedMap(t *testing.T) {
	e := NewRegexExtractor()

	m, ok := e.Find(changePage, SelectedMap)
	assert.True(t, ok)
	assert.Equal(t, "KF-SteamFortress", m)

	_, ok = e.Find(`<select id="map" name="map"><option value="KF-A">A</option></select>`, SelectedMap)
	assert.False(t, ok)
}

func TestChangeConfirmed(t *testing.T) {
	e := NewRegexExtractor()

	assert.True(t, e.Contains("<p>"+ConfirmationPhrase+"</p>", ChangeConfirmed))
	assert.False(t, e.Contains("<p>Changing the game</p>", ChangeConfirmed))
	assert.False(t, e.Contains("Changing the game! This could take a little while...", ChangeConfirmed),
		"dots in the phrase are literal")
}

func TestLoginFormMarker(t *testing.T) {
	e := NewRegexExtractor()

	assert.True(t, e.Contains(loginPage, LoginForm))
	assert.False(t, e.Contains(infoPage, LoginForm))
}

func TestPlayers(t *testing.T) {
	e := NewRegexExtractor()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "info page", body: infoPage, want: 3},
		{name: "compact", body: `<dl id="currentRules">...<dd>3/6</dd>`, want: 3},
		{name: "empty server", body: `<dl id="currentRules"><dd>0/6</dd></dl>`, want: 0},
		{name: "two digits", body: `<dl id="currentRules"><dd>12/32</dd></dl>`, want: 12},
		{name: "missing marker", body: `<dd>3/6</dd>`, want: -1},
		{name: "login page", body: loginPage, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Players(e, tt.body))
		})
	}
}

func TestPatternOverride(t *testing.T) {
	base := NewRegexExtractor()
	custom := base.withPattern(Token, regexp.MustCompile(`data-token="([^"]+)"`))

	v, ok := custom.Find(`<div data-token="xyz"></div>`, Token)
	assert.True(t, ok)
	assert.Equal(t, "xyz", v)

	_, ok = base.Find(`<div data-token="xyz"></div>`, Token)
	assert.False(t, ok, "base extractor is unchanged")
}

func TestUnknownPattern(t *testing.T) {
	e := NewRegexExtractor()
	_, ok := e.Find(loginPage, Pattern(99))
	assert.False(t, ok)
	assert.False(t, e.Contains(loginPage, Pattern(99)))
	assert.Equal(t, "pattern(99)", Pattern(99).String())
	assert.Equal(t, "token", Token.String())
}
