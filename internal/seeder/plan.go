package seeder

type statusSeed struct {
	ID   int16
	Name string
}

type branchSeed struct {
	Key  string
	Name string
}

type userSeed struct {
	FullName  string
	BranchKey string
}

type productSeed struct {
	Brand string
	Name  string
	Model string
}

type typeSeed struct {
	Name     string
	Products []productSeed
}

type categorySeed struct {
	Name  string
	Types []typeSeed
}

type plan struct {
	Statuses   []statusSeed
	Branches   []branchSeed
	Users      []userSeed
	OrderTypes []string
	Brands     []string
	Categories []categorySeed
}

func defaultPlan() plan {
	return plan{
		Statuses: []statusSeed{
			{ID: 1, Name: "Open"},
			{ID: 2, Name: "Processing"},
			{ID: 3, Name: "Completed"},
		},
		Branches: []branchSeed{
			{Key: "hq", Name: "Head Office"},
			{Key: "north", Name: "North Branch"},
		},
		Users: []userSeed{
			{FullName: "Office Admin", BranchKey: "hq"},
			{FullName: "North Clerk", BranchKey: "north"},
		},
		OrderTypes: []string{"Regular", "Urgent", "Replacement"},
		Brands:     []string{"Acme", "Globex"},
		Categories: []categorySeed{
			{
				Name: "Computers",
				Types: []typeSeed{
					{Name: "Laptop", Products: []productSeed{
						{Brand: "Acme", Name: "Acme Book 14", Model: "AB14"},
						{Brand: "Globex", Name: "Globex Slim", Model: "GS-2"},
					}},
					{Name: "Monitor", Products: []productSeed{
						{Brand: "Globex", Name: "Globex View 27", Model: "GV27"},
					}},
				},
			},
			{
				Name: "Stationery",
				Types: []typeSeed{
					{Name: "Paper", Products: []productSeed{
						{Brand: "Acme", Name: "A4 Copy Paper", Model: "A4-80"},
					}},
				},
			},
		},
	}
}
