package sheet

// TrackingCodeCandidates lists tracking code header synonyms, most specific first.
var TrackingCodeCandidates = []string{
	"Tracking number", "Tracking", "Barcode", "Waybill", "Waybill No", "AWB",
	"Package Number", "PackageNumber", "Shipment ID", "Consignment number",
}

// CarrierCandidates lists carrier header synonyms.
var CarrierCandidates = []string{
	"Carrier", "Carrier name", "Service provider", "Forwarder", "Transporter",
	"Kuljetusliike", "Service family",
}

// KeyCandidates lists groups of unique-key header synonyms in priority order.
var KeyCandidates = [][]string{
	{"Package Number", "PackageNumber", "Package No"},
	{"Orderid", "Order id", "Outbound order", "Outbound order id"},
	{"Consignment ID", "Consignment number", "Shipment ID", "Shipment No"},
	{"Waybill", "Waybill No", "AWB"},
	{"Tracking number", "Tracking", "Barcode"},
}

// DeliveredDateCandidates lists delivery date header synonyms.
var DeliveredDateCandidates = []string{
	"Delivered date", "Delivery date", "Delivered", "Delivered on", "Toimitettu", "Luovutettu",
}

// StatusCandidates lists source status header synonyms.
var StatusCandidates = []string{
	"Status", "Delivery status", "Current status", "State", "Tila", "Vaihe", "Stage",
}
