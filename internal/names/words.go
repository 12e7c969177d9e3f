package names

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"chick", "duckling", "fawn", "foal", "lamb", "calf", "porcupine", "raccoon", "skunk", "mole",
	"mouse", "ferret", "weasel", "beaver", "seahorse", "starfish", "dolphin", "whale", "narwhal",
	"penguin", "flamingo", "pelican", "swallow", "sparrow", "robin", "toucan", "parrot", "canary",
}

var places = []string{
	"attic", "balcony", "cabin", "cellar", "cottage", "courtyard", "garden", "harbor", "kitchen", "library",
	"lighthouse", "lobby", "loft", "meadow", "orchard", "parlor", "porch", "studio", "terrace", "treehouse",
	"veranda", "workshop", "canyon", "ridge", "lagoon", "grove", "summit", "dune", "glacier", "island",
}

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "blue", "red", "green", "bright", "gentle",
	"brave", "calm", "swift", "silent", "noisy", "bouncy", "fuzzy", "plucky", "merry", "peppy",
}
