package remote

// Connection field names returned by the list queries.
const (
	FieldProducts    = "products"
	FieldCollections = "collections"
	FieldCustomers   = "customers"
	FieldOrders      = "orders"
	FieldPromotions  = "codeDiscountNodes"
)

// ProductsQuery lists catalog products. $query takes a search filter such
// as ExcludeTag.
const ProductsQuery = `query Products($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query) {
    nodes {
      id title descriptionHtml handle vendor productType status tags
      variants(first: 250) {
        nodes { id title sku price compareAtPrice inventoryQuantity position image { id } }
        pageInfo { hasNextPage endCursor }
      }
      images(first: 250) {
        nodes { id url altText }
        pageInfo { hasNextPage endCursor }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const CollectionsQuery = `query Collections($first: Int!, $after: String) {
  collections(first: $first, after: $after) {
    nodes {
      id title handle descriptionHtml sortOrder
      products(first: 250) {
        nodes { id }
        pageInfo { hasNextPage endCursor }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const CustomersQuery = `query Customers($first: Int!, $after: String) {
  customers(first: $first, after: $after) {
    nodes {
      id email firstName lastName phone state tags note
      emailMarketingConsent { marketingState }
      addresses(first: 250) { id address1 address2 city province zip country phone }
      defaultAddress { id }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const OrdersQuery = `query Orders($first: Int!, $after: String) {
  orders(first: $first, after: $after) {
    nodes {
      id name email customer { id }
      displayFinancialStatus displayFulfillmentStatus currencyCode
      subtotalPriceSet { shopMoney { amount currencyCode } }
      totalTaxSet { shopMoney { amount currencyCode } }
      totalPriceSet { shopMoney { amount currencyCode } }
      processedAt cancelledAt
      lineItems(first: 250) {
        nodes {
          id title sku quantity
          originalUnitPriceSet { shopMoney { amount currencyCode } }
          product { id } variant { id }
        }
        pageInfo { hasNextPage endCursor }
      }
      transactions { id kind status gateway processedAt amountSet { shopMoney { amount currencyCode } } }
      fulfillments { id status trackingInfo { company number url } }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const PromotionsQuery = `query Promotions($first: Int!, $after: String) {
  codeDiscountNodes(first: $first, after: $after) {
    nodes {
      id
      codeDiscount {
        __typename
        ... on DiscountCodeBasic {
          title status startsAt endsAt usageLimit asyncUsageCount
          codes(first: 1) { nodes { code } }
          customerGets {
            value {
              ... on DiscountPercentage { percentage }
              ... on DiscountAmount { amount { amount } }
            }
          }
        }
        ... on DiscountCodeFreeShipping {
          title status startsAt endsAt usageLimit asyncUsageCount
          codes(first: 1) { nodes { code } }
        }
        ... on DiscountCodeBxgy {
          title status startsAt endsAt usageLimit asyncUsageCount
          codes(first: 1) { nodes { code } }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const catalogItemFields = `id title handle descriptionHtml status tags
      difficulty: metafield(namespace: "tutorial", key: "difficulty") { value }
      estimatedTime: metafield(namespace: "tutorial", key: "estimated_time") { value }`

const CatalogItemsQuery = `query CatalogItems($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query) {
    nodes {
      ` + catalogItemFields + `
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const productCreateMutation = `mutation CatalogItemCreate($input: ProductInput!) {
  productCreate(input: $input) {
    product {
      ` + catalogItemFields + `
    }
    userErrors { field message }
  }
}`

const productUpdateMutation = `mutation CatalogItemUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      ` + catalogItemFields + `
    }
    userErrors { field message }
  }
}`
