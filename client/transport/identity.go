package transport

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"github.com/sandertv/gophertunnel/minecraft/protocol/login"
	"golang.org/x/text/language"
)

// Identity is what a connection presents itself as during login. Servers
// must accept unauthenticated players for any Identity to be accepted.
type Identity struct {
	DisplayName  string
	UUID         string
	TitleID      string
	DeviceModel  string
	LanguageCode string
}

// NewIdentity returns a random Identity.
func NewIdentity() Identity {
	return Identity{
		DisplayName:  fmt.Sprintf("chunky%d", rand.IntN(1000)),
		UUID:         uuid.NewString(),
		TitleID:      fmt.Sprint(rand.Int64N(1_000_000_000)),
		DeviceModel:  "chunky",
		LanguageCode: "en_GB",
	}
}

// withDefaults fills empty fields of id.
func (id Identity) withDefaults() Identity {
	def := NewIdentity()
	if id.DisplayName == "" {
		id.DisplayName = def.DisplayName
	}
	if _, err := uuid.Parse(id.UUID); err != nil {
		id.UUID = def.UUID
	}
	if id.TitleID == "" {
		id.TitleID = def.TitleID
	}
	if id.DeviceModel == "" {
		id.DeviceModel = def.DeviceModel
	}
	id.LanguageCode = LanguageCode(id.LanguageCode)
	return id
}

func (id Identity) identityData() login.IdentityData {
	return login.IdentityData{
		Identity:    id.UUID,
		DisplayName: id.DisplayName,
		TitleID:     id.TitleID,
	}
}

func (id Identity) clientData() login.ClientData {
	return login.ClientData{
		DeviceModel:    id.DeviceModel,
		DeviceOS:       protocol.DeviceWin10,
		LanguageCode:   id.LanguageCode,
		ThirdPartyName: id.DisplayName,
	}
}

// LanguageCode normalises a language tag to the underscore form the game
// uses, such as en_GB. Invalid tags result in en_GB.
func LanguageCode(code string) string {
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil || code == "" {
		return "en_GB"
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf != language.Exact {
		return base.String()
	}
	return base.String() + "_" + region.String()
}
