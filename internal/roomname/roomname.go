package roomname

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var adjectives = []string{
	"amber", "brave", "calm", "dapper", "eager", "fuzzy", "gentle", "hazy",
	"icy", "jolly", "keen", "lucky", "mellow", "nimble", "odd", "plucky",
	"quiet", "rapid", "sunny", "tidy", "upbeat", "vivid", "witty", "zesty",
}

var animals = []string{
	"otter", "falcon", "badger", "lynx", "heron", "gecko", "marmot", "puffin",
	"walrus", "bison", "koala", "ferret", "magpie", "narwhal", "oriole", "panda",
	"quokka", "raven", "stoat", "tapir", "urchin", "viper", "wombat", "yak",
}

var places = []string{
	"harbor", "meadow", "canyon", "lagoon", "summit", "grove", "delta", "prairie",
	"tundra", "reef", "glacier", "valley", "orchard", "island", "bluff", "marsh",
}

// Generate returns a memorable room name such as "plucky-otter-lagoon".
func Generate() string {
	return strings.Join([]string{
		pick(adjectives),
		pick(animals),
		pick(places),
	}, "-")
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("roomname: random source failed: " + err.Error())
	}
	return int(n.Int64())
}
