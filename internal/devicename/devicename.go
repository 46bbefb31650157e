// Package devicename maps Apple hardware model identifiers to marketing
// names. The table covers the identifiers commonly seen when registering
// test devices; NameFor falls back to the raw identifier for anything
// unknown, so an outdated table degrades gracefully.
package devicename

var marketingNames = map[string]string{
	"iPhone10,1": "iPhone 8",
	"iPhone10,2": "iPhone 8 Plus",
	"iPhone10,3": "iPhone X",
	"iPhone10,4": "iPhone 8",
	"iPhone10,5": "iPhone 8 Plus",
	"iPhone10,6": "iPhone X",
	"iPhone11,2": "iPhone XS",
	"iPhone11,4": "iPhone XS Max",
	"iPhone11,6": "iPhone XS Max",
	"iPhone11,8": "iPhone XR",
	"iPhone12,1": "iPhone 11",
	"iPhone12,3": "iPhone 11 Pro",
	"iPhone12,5": "iPhone 11 Pro Max",
	"iPhone12,8": "iPhone SE (2nd generation)",
	"iPhone13,1": "iPhone 12 mini",
	"iPhone13,2": "iPhone 12",
	"iPhone13,3": "iPhone 12 Pro",
	"iPhone13,4": "iPhone 12 Pro Max",
	"iPhone14,2": "iPhone 13 Pro",
	"iPhone14,3": "iPhone 13 Pro Max",
	"iPhone14,4": "iPhone 13 mini",
	"iPhone14,5": "iPhone 13",
	"iPhone14,6": "iPhone SE (3rd generation)",
	"iPhone14,7": "iPhone 14",
	"iPhone14,8": "iPhone 14 Plus",
	"iPhone15,2": "iPhone 14 Pro",
	"iPhone15,3": "iPhone 14 Pro Max",
	"iPhone15,4": "iPhone 15",
	"iPhone15,5": "iPhone 15 Plus",
	"iPhone16,1": "iPhone 15 Pro",
	"iPhone16,2": "iPhone 15 Pro Max",
	"iPhone17,1": "iPhone 16 Pro",
	"iPhone17,2": "iPhone 16 Pro Max",
	"iPhone17,3": "iPhone 16",
	"iPhone17,4": "iPhone 16 Plus",
	"iPhone17,5": "iPhone 16e",

	"iPad7,11":  "iPad (7th generation)",
	"iPad7,12":  "iPad (7th generation)",
	"iPad8,1":   "iPad Pro 11-inch",
	"iPad8,5":   "iPad Pro 12.9-inch (3rd generation)",
	"iPad11,1":  "iPad mini (5th generation)",
	"iPad11,3":  "iPad Air (3rd generation)",
	"iPad12,1":  "iPad (9th generation)",
	"iPad13,1":  "iPad Air (4th generation)",
	"iPad13,4":  "iPad Pro 11-inch (3rd generation)",
	"iPad13,8":  "iPad Pro 12.9-inch (5th generation)",
	"iPad13,16": "iPad Air (5th generation)",
	"iPad13,18": "iPad (10th generation)",
	"iPad14,1":  "iPad mini (6th generation)",
	"iPad14,3":  "iPad Pro 11-inch (4th generation)",
	"iPad14,5":  "iPad Pro 12.9-inch (6th generation)",
	"iPad14,8":  "iPad Air 11-inch (M2)",
	"iPad14,10": "iPad Air 13-inch (M2)",
	"iPad16,3":  "iPad Pro 11-inch (M4)",
	"iPad16,5":  "iPad Pro 13-inch (M4)",

	"Watch6,6":  "Apple Watch Series 7",
	"Watch6,14": "Apple Watch Series 8",
	"Watch7,1":  "Apple Watch Series 9",
	"Watch7,8":  "Apple Watch Series 10",

	"AppleTV6,2":  "Apple TV 4K",
	"AppleTV11,1": "Apple TV 4K (2nd generation)",
	"AppleTV14,1": "Apple TV 4K (3rd generation)",

	"Mac14,2":  "MacBook Air (M2)",
	"Mac14,7":  "MacBook Pro 13-inch (M2)",
	"Mac15,3":  "MacBook Pro 14-inch (M3)",
	"Mac15,12": "MacBook Air 13-inch (M3)",
	"Mac16,1":  "MacBook Pro 14-inch (M4)",
}

// NameFor returns the marketing name for a model identifier, or the
// identifier itself when unknown.
func NameFor(modelIdentifier string) string {
	if name, ok := marketingNames[modelIdentifier]; ok {
		return name
	}
	return modelIdentifier
}
