package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDIDSyntax(t *testing.T) {
	assert := assert.New(t)

	valid := []string{
		"did:plc:abcdefghijklmnop",
		"did:web:example.com",
		"did:key:zDnaembgSGUhZULN2Caob4HLJPaxBh92N7rtH21TErzqf8HQo",
		"did:method:val:two",
		"did:m:v",
	}
	for _, raw := range valid {
		_, err := ParseDID(raw)
		assert.NoError(err, raw)
	}

	invalid := []string{
		"",
		"did:",
		"did:method:",
		"DID:web:example.com",
		"did:web:example.com:",
		"web:example.com",
		"did:web:exa mple.com",
	}
	for _, raw := range invalid {
		_, err := ParseDID(raw)
		assert.Error(err, raw)
	}
}

func TestDIDParts(t *testing.T) {
	assert := assert.New(t)

	did, err := ParseDID("did:WEB:example.com")
	assert.Error(err) // method must be lower-case
	_ = did

	did, err = ParseDID("did:web:Example.com")
	assert.NoError(err)
	assert.Equal("web", did.Method())
	assert.Equal("Example.com", did.Identifier())
}

func TestNSIDSyntax(t *testing.T) {
	assert := assert.New(t)

	valid := []string{
		"com.example.fooBar",
		"net.users.bob.ping",
		"a.b.c",
		"m.xn--masekowski-d0b.pl",
		"one.two.three",
		"cn.8.lex.stuff",
	}
	for _, raw := range valid {
		_, err := ParseNSID(raw)
		assert.NoError(err, raw)
	}

	invalid := []string{
		"",
		"com.example",
		"com.exa💩ple.thing",
		"com.example.3",
		".com.example.thing",
		"com.example.thing.",
	}
	for _, raw := range invalid {
		_, err := ParseNSID(raw)
		assert.Error(err, raw)
	}
}

func TestNSIDParts(t *testing.T) {
	assert := assert.New(t)

	n, err := ParseNSID("com.Example.fooBar")
	assert.NoError(err)
	assert.Equal("example.com", n.Authority())
	assert.Equal("fooBar", n.Name())
	assert.Equal(NSID("com.example.fooBar"), n.Normalize())
}

func TestRecordKeySyntax(t *testing.T) {
	assert := assert.New(t)

	valid := []string{
		"3jui7kd54zh2y",
		"self",
		"literal:self",
		"pre_fix",
		"~1.2-3",
	}
	for _, raw := range valid {
		_, err := ParseRecordKey(raw)
		assert.NoError(err, raw)
	}

	invalid := []string{
		"",
		".",
		"..",
		"rec/ord",
		"rec ord",
		"über",
		string(make([]byte, 600)),
	}
	for _, raw := range invalid {
		_, err := ParseRecordKey(raw)
		assert.Error(err, raw)
	}
}

func TestRepoPath(t *testing.T) {
	assert := assert.New(t)

	nsid, rkey, err := ParseRepoPath("com.example.feed.post/3jui7kd54zh2y")
	assert.NoError(err)
	assert.Equal(NSID("com.example.feed.post"), nsid)
	assert.Equal(RecordKey("3jui7kd54zh2y"), rkey)

	for _, raw := range []string{
		"",
		"com.example.feed.post",
		"com.example.feed.post/a/b",
		"notansid/3jui7kd54zh2y",
		"com.example.feed.post/not a rkey",
	} {
		_, _, err := ParseRepoPath(raw)
		assert.Error(err, raw)
	}
}
