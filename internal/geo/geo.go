// Package geo holds the fixed list of major cities the weather tiles rotate through.
package geo

import "strings"

type City struct {
	Name    string
	Country string
	Lat     float64
	Lon     float64
}

// Key identifies the city in caches, e.g. "Tokyo,JP".
func (c City) Key() string { return c.Name + "," + c.Country }

var MajorCities = []City{
	{Name: "New York", Country: "US", Lat: 40.7128, Lon: -74.0060},
	{Name: "London", Country: "GB", Lat: 51.5074, Lon: -0.1278},
	{Name: "Tokyo", Country: "JP", Lat: 35.6762, Lon: 139.6503},
	{Name: "Paris", Country: "FR", Lat: 48.8566, Lon: 2.3522},
	{Name: "Sydney", Country: "AU", Lat: -33.8688, Lon: 151.2093},
	{Name: "Beijing", Country: "CN", Lat: 39.9042, Lon: 116.4074},
	{Name: "Berlin", Country: "DE", Lat: 52.5200, Lon: 13.4050},
	{Name: "Moscow", Country: "RU", Lat: 55.7558, Lon: 37.6173},
	{Name: "Dubai", Country: "AE", Lat: 25.2048, Lon: 55.2708},
	{Name: "Mumbai", Country: "IN", Lat: 19.0760, Lon: 72.8777},
	{Name: "São Paulo", Country: "BR", Lat: -23.5505, Lon: -46.6333},
	{Name: "Cairo", Country: "EG", Lat: 30.0444, Lon: 31.2357},
	{Name: "Cape Town", Country: "ZA", Lat: -33.9249, Lon: 18.4241},
	{Name: "Bangkok", Country: "TH", Lat: 13.7563, Lon: 100.5018},
	{Name: "Mexico City", Country: "MX", Lat: 19.4326, Lon: -99.1332},
	{Name: "Singapore", Country: "SG", Lat: 1.3521, Lon: 103.8198},
	{Name: "Rome", Country: "IT", Lat: 41.9028, Lon: 12.4964},
	{Name: "Amsterdam", Country: "NL", Lat: 52.3676, Lon: 4.9041},
	{Name: "Seoul", Country: "KR", Lat: 37.5665, Lon: 126.9780},
	{Name: "Toronto", Country: "CA", Lat: 43.6532, Lon: -79.3832},
}

// Find looks a city up by name, ignoring case.
func Find(name string) (City, bool) {
	for _, c := range MajorCities {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return City{}, false
}

// ForID maps a tile id onto a city so the same tile keeps showing the same place.
// The index is the sum of the id's code points modulo the number of cities.
func ForID(id string) City {
	sum := 0
	for _, r := range id {
		sum += int(r)
	}
	return MajorCities[sum%len(MajorCities)]
}

// Random returns a uniformly chosen city.
func Random(intn func(int) int) City {
	return MajorCities[intn(len(MajorCities))]
}
