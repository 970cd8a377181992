package domain

type ScenarioStatus string

const (
	ScenarioDraft    ScenarioStatus = "draft"
	ScenarioProposed ScenarioStatus = "proposed"
	ScenarioFrozen   ScenarioStatus = "frozen"
	ScenarioSelected ScenarioStatus = "selected"
)

// ValidScenarioStatuses is the canonical set of accepted status strings.
var ValidScenarioStatuses = map[ScenarioStatus]bool{
	ScenarioDraft: true, ScenarioProposed: true,
	ScenarioFrozen: true, ScenarioSelected: true,
}

type CreatorRole string

const (
	RoleClient   CreatorRole = "client"
	RoleManager  CreatorRole = "manager"
	RoleSupplier CreatorRole = "supplier"
)

// ValidCreatorRoles is the canonical set of accepted creator role strings.
var ValidCreatorRoles = map[CreatorRole]bool{
	RoleClient: true, RoleManager: true, RoleSupplier: true,
}

type NotificationType string

const (
	NotifyScenarioCreated  NotificationType = "scenario_created"
	NotifyScenarioUpdated  NotificationType = "scenario_updated"
	NotifyScenarioProposed NotificationType = "scenario_proposed"
	NotifyScenarioFrozen   NotificationType = "scenario_frozen"
	NotifyScenarioSelected NotificationType = "scenario_selected"
	NotifyScenarioDeleted  NotificationType = "scenario_deleted"
)
