// Package catalog maintains the reference data the price facts hang off:
// crop categories and default units, and lazy resolution of crop, region,
// and market names to stable identifiers.
package catalog

import "strings"

// Category is a fixed commodity classification bucket.
type Category string

const (
	CategoryFarmInputs     Category = "farm_inputs"
	CategoryAnimalFeeds    Category = "animal_feeds"
	CategoryProcessed      Category = "processed_products"
	CategoryCashCrops      Category = "cash_crops"
	CategoryLivestock      Category = "livestock"
	CategoryPoultry        Category = "poultry"
	CategoryFisheries      Category = "fisheries"
	CategoryAnimalProducts Category = "animal_products"
	CategoryCereals        Category = "cereals"
	CategoryLegumes        Category = "legumes"
	CategoryRootsTubers    Category = "roots_tubers"
	CategoryFruits         Category = "fruits"
	CategoryVegetables     Category = "vegetables"
	CategorySpicesHerbs    Category = "spices_herbs"
	CategoryGeneral        Category = "general"
)

type rule struct {
	keywords []string
	category Category
}

// classification is evaluated top to bottom; the first rule with a
// matching keyword wins. The order is a priority chain, not a lookup
// table: inputs, feeds, and processed goods come before raw produce so
// "certified seed maize" is not a cereal, "layers mash" is not poultry,
// and "cooking oil" or "maize flour" is not a field crop. Do not reorder.
var classification = []rule{
	{[]string{"fertilizer", "fertiliser", "pesticide", "herbicide", "fungicide",
		"insecticide", "seedling", "certified seed", "manure", "agrochemical"},
		CategoryFarmInputs},
	{[]string{"dairy meal", "layers mash", "growers mash", "chick mash", "bran",
		"concentrate", "feed supplement", "animal feed", "feeds", "fodder", "hay", "silage"},
		CategoryAnimalFeeds},
	{[]string{"flour", "bread", "juice", "jam", "margarine", "butter", "cheese",
		"yoghurt", "yogurt", "cooking oil", "cooking fat", "refined", "processed",
		"sifted", "roasted"},
		CategoryProcessed},
	{[]string{"tea", "coffee", "cotton", "sugarcane", "sugar cane", "tobacco",
		"pyrethrum", "sisal", "cashew", "macadamia", "vanilla", "palm oil"},
		CategoryCashCrops},
	{[]string{"cattle", "cow", "bull", "heifer", "steer", "calf", "goat", "sheep",
		"ewe", "lamb", "pig", "camel", "donkey", "rabbit"},
		CategoryLivestock},
	{[]string{"chicken", "poultry", "broiler", "kienyeji", "hen", "cockerel",
		"duck", "turkey", "goose", "quail", "chick"},
		CategoryPoultry},
	{[]string{"fish", "tilapia", "omena", "catfish", "trout", "salmon", "prawn",
		"crab", "lobster", "octopus"},
		CategoryFisheries},
	{[]string{"milk", "egg", "honey", "beef", "mutton", "pork", "bacon", "ghee",
		"hide", "wool", "meat"},
		CategoryAnimalProducts},
	{[]string{"maize", "corn", "wheat", "rice", "barley", "sorghum", "millet",
		"oats", "cereal"},
		CategoryCereals},
	{[]string{"bean", "pea", "lentil", "gram", "groundnut", "soya", "soybean",
		"chickpea", "njahi", "dengu"},
		CategoryLegumes},
	{[]string{"potato", "cassava", "yam", "arrowroot", "nduma", "turnip", "beetroot"},
		CategoryRootsTubers},
	{[]string{"banana", "mango", "orange", "avocado", "pineapple", "passion",
		"pawpaw", "papaya", "watermelon", "melon", "apple", "grape", "lemon",
		"lime", "guava", "berry", "fruit"},
		CategoryFruits},
	{[]string{"tomato", "onion", "cabbage", "kale", "sukuma", "spinach", "carrot",
		"capsicum", "cucumber", "lettuce", "broccoli", "cauliflower", "brinjal",
		"eggplant", "pumpkin", "courgette", "vegetable"},
		CategoryVegetables},
	{[]string{"chilli", "chili", "pepper", "garlic", "coriander", "dhania",
		"turmeric", "ginger", "cinnamon", "clove", "basil", "mint", "rosemary",
		"herb", "spice"},
		CategorySpicesHerbs},
}

// Classify maps a raw commodity name to its category. Names matching no
// rule fall through to CategoryGeneral.
func Classify(rawName string) Category {
	name := strings.ToLower(rawName)
	for _, r := range classification {
		for _, kw := range r.keywords {
			if strings.Contains(name, kw) {
				return r.category
			}
		}
	}
	return CategoryGeneral
}

var litreKeywords = []string{"milk", "oil", "juice", "honey", "yoghurt", "yogurt"}

var pieceKeywords = []string{
	"cabbage", "lettuce", "cauliflower", "broccoli", "pineapple",
	"watermelon", "melon", "pawpaw", "papaya", "coconut", "pumpkin",
}

// DefaultUnit picks the trading unit for a newly seen commodity. Live
// animals trade per head or bird; liquids per litre; eggs per tray;
// bulky piece-counted produce per piece; everything else per kg.
func DefaultUnit(category Category, rawName string) string {
	switch category {
	case CategoryLivestock:
		return "head"
	case CategoryPoultry:
		return "bird"
	}

	name := strings.ToLower(rawName)
	for _, kw := range litreKeywords {
		if strings.Contains(name, kw) {
			return "litre"
		}
	}
	if strings.Contains(name, "egg") {
		return "tray"
	}
	for _, kw := range pieceKeywords {
		if strings.Contains(name, kw) {
			return "piece"
		}
	}
	return "kg"
}
