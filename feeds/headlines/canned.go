package headlines

// canned stands in for the NYT when both section fetches come back empty.
var canned = []Article{
	{
		Title:    "Global climate conference proposes new emissions targets",
		Abstract: "World leaders gathered to discuss new climate initiatives.",
		URL:      "https://www.nytimes.com/",
		PhotoURL: "https://images.unsplash.com/photo-1611270629569-8b357cb88da9?q=80&w=1000&auto=format&fit=crop",
	},
	{
		Title:    "Researchers discover promising treatment for rare disease",
		Abstract: "New study shows potential breakthrough for patients.",
		URL:      "https://www.nytimes.com/section/health",
		PhotoURL: "https://images.unsplash.com/photo-1576086213369-97a306d36557?q=80&w=1000&auto=format&fit=crop",
	},
	{
		Title:    "Space agency announces plans for new lunar mission",
		Abstract: "Mission expected to launch within the next five years.",
		URL:      "https://www.nytimes.com/section/science",
		PhotoURL: "https://images.unsplash.com/photo-1454789548928-9efd52dc4031?q=80&w=1000&auto=format&fit=crop",
	},
	{
		Title:    "Tech giant unveils innovative sustainable energy solution",
		Abstract: "New technology could reduce carbon footprint by 30%.",
		URL:      "https://www.nytimes.com/section/technology",
		PhotoURL: "https://images.unsplash.com/photo-1508514177221-188b1cf16e9d?q=80&w=1000&auto=format&fit=crop",
	},
	{
		Title:    "International summit addresses economic cooperation",
		Abstract: "Leaders agree on framework for future trade relations.",
		URL:      "https://www.nytimes.com/section/business",
		PhotoURL: "https://images.unsplash.com/photo-1551836022-d5d88e9218df?q=80&w=1000&auto=format&fit=crop",
	},
	{
		Title:    "Breakthrough in material science leads to stronger, lighter composites",
		Abstract: "New materials could revolutionize aerospace industry.",
		URL:      "https://www.nytimes.com/section/science",
		PhotoURL: "https://images.unsplash.com/photo-1507413245164-6160d8298b31?q=80&w=1000&auto=format&fit=crop",
	},
}
