package models

type QueueStats struct {
	ServiceDate string  `json:"service_date"`
	Waiting     int     `json:"waiting"`
	BeingServed int     `json:"being_served"`
	Completed   int     `json:"completed"`
	Cancelled   int     `json:"cancelled"`
	TotalToday  int     `json:"total_today"`
	NextTicket  *string `json:"next_ticket"`
}

type PredictedTurn struct {
	Turn            TurnDetail `json:"turn"`
	PredictedModule *Module    `json:"predicted_module"`
}

type Board struct {
	Stats    QueueStats      `json:"stats"`
	Serving  []TurnDetail    `json:"serving"`
	Upcoming []PredictedTurn `json:"upcoming"`
}
